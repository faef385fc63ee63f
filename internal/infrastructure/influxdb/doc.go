// Package influxdb provides InfluxDB connectivity for the gateway.
//
// It wraps influxdb-client-go v2 with connection checks, a batching
// non-blocking write API and health monitoring. Measurement shapes live
// with their producers (see internal/telemetry); this package only moves
// points.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.WritePoint("device_message", tags, fields)
package influxdb
