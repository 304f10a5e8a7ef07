package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/auth"
	"github.com/ETC11111/app-serial-sub001/internal/frame"
)

// Client message types.
const (
	TypeAuth              = "auth"
	TypeSubscribeDevices  = "subscribe_devices"
	TypeGetLatestData     = "get_latest_data"
	TypeSendModbusCommand = "send_modbus_command"
	TypePing              = "ping"
)

// Server message types.
const (
	TypeConnection          = "connection"
	TypeAuthSuccess         = "auth_success"
	TypeSubscriptionUpdated = "subscription_updated"
	TypeSensorData          = "sensor_data"
	TypeLatestDataResponse  = "latest_data_response"
	TypeAllLatestData       = "all_latest_data"
	TypeCommandSent         = "command_sent"
	TypeModbusResponse      = "modbus_response"
	TypeDeviceStatus        = "device_status"
	TypePong                = "pong"
	TypeError               = "error"
)

// Error replies.
const (
	ErrMsgParse         = "Message parse error"
	ErrMsgAuthFailed    = "Authentication failed"
	ErrMsgAuthRequired  = "Authentication required"
	ErrMsgPublishFailed = "Command publish failed"
)

// timestampLayout matches ISO-8601 with millisecond precision in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// formatTimestamp renders t in UTC for the timestamp field of every server
// message.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ErrMalformed is returned by ParseClientMessage for invalid JSON or a payload
// that does not fit its declared type.
var ErrMalformed = errors.New("gateway: malformed client message")

// ClientMessage is one parsed client request. The concrete type is one of
// AuthRequest, SubscribeRequest, LatestRequest, CommandRequest, PingRequest
// or UnknownRequest.
type ClientMessage interface {
	messageType() string
}

// AuthRequest presents a token.
type AuthRequest struct {
	Token string `json:"token"`
}

// SubscribeRequest replaces the client's device filter.
type SubscribeRequest struct {
	DeviceIDs []string
}

// LatestRequest asks for one device's reading, or all when DeviceID is empty.
type LatestRequest struct {
	DeviceID string `json:"deviceId"`
}

// CommandRequest asks the gateway to forward a command to a device.
type CommandRequest struct {
	DeviceID string
	Command  frame.Command
}

// PingRequest is a keepalive.
type PingRequest struct{}

// UnknownRequest carries a type outside the protocol.
type UnknownRequest struct {
	Type string
}

func (AuthRequest) messageType() string      { return TypeAuth }
func (SubscribeRequest) messageType() string { return TypeSubscribeDevices }
func (LatestRequest) messageType() string    { return TypeGetLatestData }
func (CommandRequest) messageType() string   { return TypeSendModbusCommand }
func (PingRequest) messageType() string      { return TypePing }
func (u UnknownRequest) messageType() string { return u.Type }

// ParseClientMessage decodes a client frame into its typed form.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, errors.Join(ErrMalformed, errors.New("type is required"))
	}

	switch env.Type {
	case TypeAuth:
		var m AuthRequest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		return m, nil

	case TypeSubscribeDevices:
		var raw struct {
			DeviceIDs *[]string `json:"deviceIds"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		if raw.DeviceIDs == nil {
			return nil, errors.Join(ErrMalformed, errors.New("deviceIds must be an array"))
		}
		return SubscribeRequest{DeviceIDs: *raw.DeviceIDs}, nil

	case TypeGetLatestData:
		var m LatestRequest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		return m, nil

	case TypeSendModbusCommand:
		var raw struct {
			DeviceID string         `json:"deviceId"`
			Command  *frame.Command `json:"command"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		if raw.DeviceID == "" || raw.Command == nil {
			return nil, errors.Join(ErrMalformed, errors.New("deviceId and command are required"))
		}
		return CommandRequest{DeviceID: raw.DeviceID, Command: *raw.Command}, nil

	case TypePing:
		return PingRequest{}, nil

	default:
		return UnknownRequest{Type: env.Type}, nil
	}
}

// ConnectionMessage acknowledges a new connection.
type ConnectionMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	ClientID  string `json:"clientId"`
	Timestamp string `json:"timestamp"`
}

// AuthSuccessMessage confirms a verified token.
type AuthSuccessMessage struct {
	Type      string        `json:"type"`
	User      auth.UserInfo `json:"user"`
	Timestamp string        `json:"timestamp"`
}

// SubscriptionUpdatedMessage echoes the new device filter.
type SubscriptionUpdatedMessage struct {
	Type              string   `json:"type"`
	SubscribedDevices []string `json:"subscribedDevices"`
	Timestamp         string   `json:"timestamp"`
}

// SensorDataMessage carries a decoded reading.
type SensorDataMessage struct {
	Type      string              `json:"type"`
	DeviceID  string              `json:"deviceId"`
	Data      frame.SensorReading `json:"data"`
	Timestamp string              `json:"timestamp"`
}

// LatestDataResponse answers get_latest_data for one device. Data is null
// when nothing is cached.
type LatestDataResponse struct {
	Type      string               `json:"type"`
	DeviceID  string               `json:"deviceId"`
	Data      *frame.SensorReading `json:"data"`
	Timestamp string               `json:"timestamp"`
}

// AllLatestDataMessage answers get_latest_data without a device.
type AllLatestDataMessage struct {
	Type      string                         `json:"type"`
	Data      map[string]frame.SensorReading `json:"data"`
	Timestamp string                         `json:"timestamp"`
}

// CommandSentMessage confirms a command was handed to the broker.
type CommandSentMessage struct {
	Type      string        `json:"type"`
	DeviceID  string        `json:"deviceId"`
	Command   frame.Command `json:"command"`
	Timestamp string        `json:"timestamp"`
}

// ModbusResponseMessage relays a device's reply from the broker.
type ModbusResponseMessage struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"deviceId"`
	Response  json.RawMessage `json:"response"`
	Timestamp string          `json:"timestamp"`
}

// DeviceStatusMessage relays a device status update from the broker.
type DeviceStatusMessage struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"deviceId"`
	Status    json.RawMessage `json:"status"`
	Timestamp string          `json:"timestamp"`
}

// PongMessage answers ping.
type PongMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// ErrorMessage reports a problem with the client's last message.
type ErrorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
