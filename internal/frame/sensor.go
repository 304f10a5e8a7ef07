package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Sensor frame layout.
const (
	SensorFrameSize = 36

	offTemperature     = 16
	offHumidity        = 18
	offWaterTemp       = 20
	offLightLevel      = 22
	offEC              = 24
	offPH              = 26
	offDeviceTimestamp = 28
	offCRC             = 32
)

// SensorReading is one decoded, checksum-verified sensor frame.
type SensorReading struct {
	DeviceID        string    `json:"deviceId"`
	Temperature     float64   `json:"temperature"`
	Humidity        float64   `json:"humidity"`
	WaterTemp       float64   `json:"waterTemp"`
	LightLevel      uint16    `json:"lightLevel"`
	EC              uint16    `json:"ec"`
	PH              float64   `json:"ph"`
	DeviceTimestamp uint32    `json:"deviceTimestamp"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
	CRC32           uint32    `json:"crc32"`
}

// DecodeSensorFrame validates and decodes a raw sensor frame.
//
// receivedAt becomes the reading's server timestamp. The error wraps
// ErrFrameLength or ErrFrameChecksum; both are ErrFrameIntegrity.
func DecodeSensorFrame(deviceID string, buf []byte, receivedAt time.Time) (SensorReading, error) {
	if len(buf) != SensorFrameSize {
		return SensorReading{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameLength, len(buf), SensorFrameSize)
	}

	carried := binary.LittleEndian.Uint32(buf[offCRC:])
	computed := CRC32(buf[:offCRC])
	if carried != computed {
		return SensorReading{}, fmt.Errorf("%w: carried %08x, computed %08x", ErrFrameChecksum, carried, computed)
	}

	le := binary.LittleEndian
	return SensorReading{
		DeviceID:        deviceID,
		Temperature:     float64(le.Uint16(buf[offTemperature:])) / 10,
		Humidity:        float64(le.Uint16(buf[offHumidity:])) / 10,
		WaterTemp:       float64(le.Uint16(buf[offWaterTemp:])) / 10,
		LightLevel:      le.Uint16(buf[offLightLevel:]),
		EC:              le.Uint16(buf[offEC:]),
		PH:              float64(le.Uint16(buf[offPH:])) / 100,
		DeviceTimestamp: le.Uint32(buf[offDeviceTimestamp:]),
		ServerTimestamp: receivedAt.UTC(),
		CRC32:           carried,
	}, nil
}

// EncodeSensorFrame builds a valid frame carrying the reading's measurements.
// Scaled fields are rounded to the frame's resolution; the reserved bytes are
// zero. It is the inverse of DecodeSensorFrame and is what a field device emits.
func EncodeSensorFrame(r SensorReading) []byte {
	buf := make([]byte, SensorFrameSize)
	le := binary.LittleEndian
	le.PutUint16(buf[offTemperature:], scale(r.Temperature, 10))
	le.PutUint16(buf[offHumidity:], scale(r.Humidity, 10))
	le.PutUint16(buf[offWaterTemp:], scale(r.WaterTemp, 10))
	le.PutUint16(buf[offLightLevel:], r.LightLevel)
	le.PutUint16(buf[offEC:], r.EC)
	le.PutUint16(buf[offPH:], scale(r.PH, 100))
	le.PutUint32(buf[offDeviceTimestamp:], r.DeviceTimestamp)
	le.PutUint32(buf[offCRC:], CRC32(buf[:offCRC]))
	return buf
}

func scale(v, factor float64) uint16 {
	raw := math.Round(v * factor)
	switch {
	case raw < 0:
		return 0
	case raw > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(raw)
}
