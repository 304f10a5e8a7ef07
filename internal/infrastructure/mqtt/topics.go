package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes used between field devices and the gateway.
const (
	TopicPrefixSensorBinary   = "sensors/binary"
	TopicPrefixModbusResponse = "modbus/responses"
	TopicPrefixDeviceStatus   = "device/status"
	TopicPrefixModbusCommand  = "modbus/commands"

	// TopicGatewayStatus carries the gateway's retained online/offline state.
	TopicGatewayStatus = "farm/gateway/status"
)

// TopicKind classifies an inbound device topic.
type TopicKind int

const (
	TopicUnknown TopicKind = iota
	TopicSensorBinary
	TopicModbusResponse
	TopicDeviceStatus
)

func (k TopicKind) String() string {
	switch k {
	case TopicSensorBinary:
		return "sensor_binary"
	case TopicModbusResponse:
		return "modbus_response"
	case TopicDeviceStatus:
		return "device_status"
	default:
		return "unknown"
	}
}

// Topics provides builders for the gateway's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ModbusCommand("greenhouse-01") // "modbus/commands/greenhouse-01"
type Topics struct{}

// SensorBinary is the topic a device publishes raw sensor frames to.
func (Topics) SensorBinary(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixSensorBinary, deviceID)
}

// ModbusResponse is the topic a device publishes command responses to.
func (Topics) ModbusResponse(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixModbusResponse, deviceID)
}

// DeviceStatus is the topic a device publishes status documents to.
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixDeviceStatus, deviceID)
}

// ModbusCommand is the topic the gateway publishes client commands to.
func (Topics) ModbusCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixModbusCommand, deviceID)
}

// GatewayStatus returns the retained gateway status topic.
func (Topics) GatewayStatus() string {
	return TopicGatewayStatus
}

// AllSensorBinary matches sensor frames from every device.
func (Topics) AllSensorBinary() string {
	return TopicPrefixSensorBinary + "/+"
}

// AllModbusResponses matches command responses from every device.
func (Topics) AllModbusResponses() string {
	return TopicPrefixModbusResponse + "/+"
}

// AllDeviceStatus matches status documents from every device.
func (Topics) AllDeviceStatus() string {
	return TopicPrefixDeviceStatus + "/+"
}

// Inbound lists the wildcard topics the gateway subscribes to.
func (t Topics) Inbound() []string {
	return []string{t.AllSensorBinary(), t.AllModbusResponses(), t.AllDeviceStatus()}
}

// ParseTopic splits an inbound topic into its kind and device ID.
// It returns TopicUnknown when the prefix is not recognised or the device
// segment is empty or nested.
func ParseTopic(topic string) (TopicKind, string) {
	prefixes := []struct {
		prefix string
		kind   TopicKind
	}{
		{TopicPrefixSensorBinary + "/", TopicSensorBinary},
		{TopicPrefixModbusResponse + "/", TopicModbusResponse},
		{TopicPrefixDeviceStatus + "/", TopicDeviceStatus},
	}

	for _, p := range prefixes {
		if !strings.HasPrefix(topic, p.prefix) {
			continue
		}
		deviceID := topic[len(p.prefix):]
		if deviceID == "" || strings.Contains(deviceID, "/") {
			return TopicUnknown, ""
		}
		return p.kind, deviceID
	}
	return TopicUnknown, ""
}
