// Package mqtt provides MQTT broker connectivity for the gateway.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained state topics
//   - Subscriptions that survive reconnects
//   - Last Will and Testament on the system status topic
//
// # Topics
//
// All topics share a configurable prefix (default "gateway"):
//
//	gateway/system/status          retained, gateway online/offline (LWT)
//	gateway/device/<imei>/status   retained, device online/offline
//	gateway/device/<imei>/data     every data message from a device
//	gateway/command                inbound operator commands
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().Command(), client.QoS(), handler)
package mqtt
