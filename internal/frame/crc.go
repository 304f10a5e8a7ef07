package frame

import "hash/crc32"

// CRC16 Modbus parameters.
const (
	crc16Init uint16 = 0xFFFF
	crc16Poly uint16 = 0xA001
)

// CRC32 returns the IEEE CRC-32 of data (reflected, poly 0xEDB88320,
// initial value and final XOR 0xFFFFFFFF).
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// CRC16Modbus returns the CRC-16/Modbus of data.
func CRC16Modbus(data []byte) uint16 {
	crc := crc16Init
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
