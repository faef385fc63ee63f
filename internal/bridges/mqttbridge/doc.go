// Package mqttbridge connects the gateway to an MQTT broker.
//
// Outbound, it publishes a retained status message per device when the
// device registers and again when it disconnects, plus one message per data
// frame. Inbound, every message on the command topic is decoded with
// command.Decode and passed to the gateway.
//
//	bridge, err := mqttbridge.NewBridge(mqttbridge.Options{
//	    Client:  client,
//	    Gateway: gw,
//	    Topics:  client.Topics(),
//	    QoS:     client.QoS(),
//	})
//	gw.AddObserver(bridge)
//	err = bridge.Start()
package mqttbridge
