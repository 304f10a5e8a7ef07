package frame

import (
	"encoding/binary"
	"fmt"
)

// CommandFrameSize is the length of a binary Modbus command.
const CommandFrameSize = 8

// CommandType selects how a command travels to the device.
type CommandType string

const (
	TypeText   CommandType = "text"
	TypeBinary CommandType = "binary"
)

// Valid reports whether t is one of the supported command types.
func (t CommandType) Valid() bool {
	return t == TypeText || t == TypeBinary
}

// Command is a single Modbus register operation addressed to a device.
type Command struct {
	SlaveID      uint8       `json:"slaveId"`
	FunctionCode uint8       `json:"functionCode"`
	Address      uint16      `json:"address"`
	Value        uint16      `json:"value"`
	Type         CommandType `json:"type"`
}

// Validate rejects commands whose type is neither text nor binary.
func (c Command) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCommandType, c.Type)
	}
	return nil
}

// EncodeCommand returns the 8-byte binary frame for cmd. The type field is
// not part of the frame.
func EncodeCommand(cmd Command) []byte {
	buf := make([]byte, CommandFrameSize)
	buf[0] = cmd.SlaveID
	buf[1] = cmd.FunctionCode
	binary.BigEndian.PutUint16(buf[2:], cmd.Address)
	binary.BigEndian.PutUint16(buf[4:], cmd.Value)
	binary.LittleEndian.PutUint16(buf[6:], CRC16Modbus(buf[:6]))
	return buf
}

// CommandText renders cmd in the device's text protocol.
func CommandText(cmd Command) string {
	return fmt.Sprintf("MODBUS:%d,%d,%d,%d", cmd.SlaveID, cmd.FunctionCode, cmd.Address, cmd.Value)
}
