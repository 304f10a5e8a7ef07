// Package frame encodes and decodes the gateway's wire formats.
//
// Inbound sensor frames are exactly 36 bytes, little-endian:
//
//	offset  size  field
//	0       16    reserved
//	16      2     temperature  (/10)
//	18      2     humidity     (/10)
//	20      2     water temp   (/10)
//	22      2     light level
//	24      2     EC
//	26      2     pH           (/100)
//	28      4     device timestamp
//	32      4     CRC-32 (IEEE, reflected) of bytes 0..31
//
// Outbound binary commands are 8 bytes:
//
//	slave | function | address (BE16) | value (BE16) | CRC-16/Modbus (LE16)
//
// and the text form is "MODBUS:slave,function,address,value".
//
// All functions are pure and safe for concurrent use.
package frame
