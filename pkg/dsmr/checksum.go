package dsmr

import (
	"github.com/sigurn/crc16"
)

// CRC-16/ARC: reflected polynomial 0xA001 (0x8005 normal form), init 0x0000, no final xor.
var arcTable = crc16.MakeTable(crc16.CRC16_ARC)

// Checksum returns the CRC-16/ARC of data. An empty input yields 0.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, arcTable)
}
