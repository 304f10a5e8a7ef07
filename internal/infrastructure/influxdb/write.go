package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ETC11111/app-serial-sub001/internal/dispatch"
)

// Measurement names.
const (
	MeasurementCommandDispatch = "command_dispatch"
	MeasurementGatewayStats    = "gateway_stats"
)

// CommandDispatched implements dispatch.Observer, writing one
// command_dispatch point per outcome.
func (c *Client) CommandDispatched(_ context.Context, o dispatch.Outcome) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(dispatchPoint(o))
}

// WriteGatewayStats records the gateway's connection counts.
func (c *Client) WriteGatewayStats(gatewayID string, clients, devices int, brokerConnected bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statsPoint(gatewayID, clients, devices, brokerConnected, time.Now()))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func dispatchPoint(o dispatch.Outcome) *write.Point {
	outcome := "success"
	if !o.Result.Success {
		outcome = "failure"
	}

	fields := map[string]interface{}{
		"duration_ms":   float64(o.Duration.Microseconds()) / 1000,
		"slave_id":      int64(o.Command.SlaveID),
		"function_code": int64(o.Command.FunctionCode),
	}
	if o.StatusCode != 0 {
		fields["status_code"] = int64(o.StatusCode)
	}
	if o.Result.Error != "" {
		fields["error"] = o.Result.Error
	}

	at := o.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		MeasurementCommandDispatch,
		map[string]string{
			"device_id":    o.DeviceID,
			"command_type": string(o.Command.Type),
			"outcome":      outcome,
		},
		fields,
		at,
	)
}

func statsPoint(gatewayID string, clients, devices int, brokerConnected bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementGatewayStats,
		map[string]string{"gateway_id": gatewayID},
		map[string]interface{}{
			"connected_clients": int64(clients),
			"devices":           int64(devices),
			"broker_connected":  brokerConnected,
		},
		at,
	)
}
