// Package gateway routes messages between the MQTT broker and connected
// WebSocket clients.
//
// Inbound broker traffic:
//
//	sensors/binary/{id}     36-byte frame, decoded, cached, broadcast as sensor_data
//	modbus/responses/{id}   JSON, retained per device, broadcast as modbus_response
//	device/status/{id}      JSON, broadcast as device_status
//
// Broadcasts honour each client's device filter: a client with an empty
// filter receives everything, otherwise only messages for devices it
// subscribed to.
//
// A sensor frame's cache write and broadcast are serialised with the cache
// replay that follows subscribe_devices, so a subscribing client's last
// sensor_data for a device is never older than the cached reading.
//
// Client messages are a closed set (auth, subscribe_devices, get_latest_data,
// send_modbus_command, ping), parsed into typed values before dispatch.
// Replies go to the sending client only. Every server message carries an
// ISO-8601 timestamp. A message without a type is a parse error.
//
// The Registry owns the client table; the transport (see internal/api)
// supplies a Socket per connection and feeds received frames to
// Gateway.HandleClientMessage from a single goroutine per client.
package gateway
