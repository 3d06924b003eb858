package sunspec_modbus

import (
	"math"

	"github.com/simonvetter/modbus"
)

// ModbusClient holds the register helpers shared by SunSpec readers.
// Scale factors are signed powers of ten.
type ModbusClient struct {
	client *modbus.ModbusClient
}

func (reader ModbusClient) applySF(number uint16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader ModbusClient) applySFint16(number int16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader ModbusClient) applySFuint32(number uint32, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader ModbusClient) readRegister(addr uint16) (uint16, error) {
	return reader.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (reader ModbusClient) readRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	return reader.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

// readUint32 reads two registers, high word first.
func (reader ModbusClient) readUint32(addr uint16) (uint32, error) {
	regs, err := reader.readRegisters(addr, 2)
	if err != nil {
		return 0, err
	}
	return joinWords(regs[0], regs[1]), nil
}

func (reader ModbusClient) writeRegisters(addr uint16, values []uint16) error {
	return reader.client.WriteRegisters(addr, values)
}

func joinWords(hi uint16, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

func splitWords(v uint32) (uint16, uint16) {
	return uint16(v >> 16), uint16(v)
}
