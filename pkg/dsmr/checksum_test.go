package dsmr

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

// bitwise reference: reflected 0xA001, init 0, LSB first
func referenceCRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func TestChecksumKnownVector(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(uint16(0xBB3D), Checksum([]byte("123456789")), "CRC-16/ARC check value")
	assert.Equal(uint16(0x0000), Checksum(nil), "empty input")
	assert.Equal(uint16(0x0000), Checksum([]byte{}), "empty input")
}

func TestChecksumMatchesBitwiseReference(t *testing.T) {

	assert := assert.New(t)

	r := rand.New(rand.NewPCG(42, 7))
	for n := 0; n < 200; n++ {
		data := make([]byte, r.IntN(600))
		for i := range data {
			data[i] = byte(r.UintN(256))
		}
		assert.Equal(referenceCRC(data), Checksum(data), "random input of %d bytes", len(data))
	}
}
