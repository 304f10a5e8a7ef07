// Package influxdb records the gateway's operational history in InfluxDB.
//
// Sensor readings are not stored here; the gateway keeps only the latest
// value per device. What is written:
//
//   - command_dispatch: one point per command sent to a device, tagged by
//     device_id, command_type and outcome, with the round-trip duration and
//     the HTTP status or error string.
//   - gateway_stats: periodic connected client, device and broker counts.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	dispatcher.AddObserver(client)
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Asynchronous write failures are delivered to the SetOnError callback.
package influxdb
