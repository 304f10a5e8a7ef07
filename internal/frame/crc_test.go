package frame

import "testing"

func TestCRC32(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 0x00000000},
		{"check string", []byte("123456789"), 0xCBF43926},
		{"single zero", []byte{0x00}, 0xD202EF8D},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC32(tt.data); got != tt.want {
				t.Errorf("CRC32(%x) = %08x, want %08x", tt.data, got, tt.want)
			}
		})
	}
}

func TestCRC16Modbus(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, 0xFFFF},
		{"check string", []byte("123456789"), 0x4B37},
		{"read holding registers", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}, 0xCDC5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16Modbus(tt.data); got != tt.want {
				t.Errorf("CRC16Modbus(%x) = %04x, want %04x", tt.data, got, tt.want)
			}
		})
	}
}
