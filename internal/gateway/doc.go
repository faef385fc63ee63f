// Package gateway accepts device TCP connections and runs a session per
// connection.
//
// The Gateway owns the listener, the command bus, the online registry and
// an event dispatcher. Each accepted connection subscribes to the bus and
// is handed to a session.Handler, which verifies the device identity,
// registers it and then services data and commands until the connection
// ends.
//
// Operator-facing surfaces (REST API, console, MQTT bridge) drive the
// gateway through three operations:
//
//	gw.ListOnline()          // devices currently connected and registered
//	gw.GetLog(imei)          // full data log of one device
//	gw.SendCommand(cmd)      // broadcast or targeted command
//
// Lifecycle events are delivered to Observers on a single goroutine in
// emission order:
//
//	gw := gateway.New(cfg,
//	    gateway.WithLogger(log),
//	    gateway.WithObserver(gateway.NewDirectoryObserver(dir, log)),
//	)
//	if err := gw.Start(ctx); err != nil {
//	    return err
//	}
//	defer gw.Close()
package gateway
