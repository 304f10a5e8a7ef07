// Package mqtt provides the gateway's broker connection.
//
// Field devices publish to the broker and the gateway consumes:
//
//	sensors/binary/{deviceId}    36-byte sensor frames
//	modbus/responses/{deviceId}  JSON command responses
//	device/status/{deviceId}     JSON status documents
//
// and publishes client commands to modbus/commands/{deviceId}. The gateway's
// own retained status lives on farm/gateway/status and is backed by a last
// will so subscribers notice an unclean exit.
//
// The client reconnects automatically with exponential backoff between the
// configured initial and maximum delays, and replays its subscriptions once
// the session is back. Delivery is ordered: handlers for one client run
// sequentially in broker order.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensorBinary(), 1, handler)
package mqtt
