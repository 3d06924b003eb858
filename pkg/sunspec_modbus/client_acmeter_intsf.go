package sunspec_modbus

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/simonvetter/modbus"
)

var (
	ErrNotSunSpec    = errors.New("could not find a SunSpec device")
	ErrMissingBlocks = errors.New("could not find all required sunspec blocks (common, ac_meter)")
)

// maxSurveyBlocks bounds the block walk on devices without an end marker.
const maxSurveyBlocks = 12

// ACMeterIntSFModbusReader reads a SunSpec integer + scale factor meter (models 201-204).
// Block addresses are discovered on Open.
type ACMeterIntSFModbusReader struct {
	ModbusClient
	common  uint16
	acMeter uint16
}

var _ ACMeterModbusReader = (*ACMeterIntSFModbusReader)(nil)

func CreateACMeterIntSFModbusReader(url string, unitId uint8, timeout time.Duration) (ACMeterModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := client.SetUnitId(unitId); err != nil {
		return nil, err
	}
	return &ACMeterIntSFModbusReader{ModbusClient: ModbusClient{client: client}}, nil
}

func (reader *ACMeterIntSFModbusReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	if err := reader.survey(); err != nil {
		reader.client.Close()
		return err
	}
	return nil
}

func (reader *ACMeterIntSFModbusReader) Close() error {
	return reader.client.Close()
}

// Validate checks the SunSpec marker and that the meter block is a wye meter.
func (reader *ACMeterIntSFModbusReader) Validate() error {
	if err := reader.checkMarker(); err != nil {
		return err
	}
	id, err := reader.readRegister(reader.acMeter)
	if err != nil {
		return err
	}
	if id != SUNSPEC_WK_METER_WYE {
		return fmt.Errorf("smart meter model %d is not a three phase wye meter", id)
	}
	return nil
}

func (reader *ACMeterIntSFModbusReader) GetInfo() (*ACMeterInfo, error) {
	block, err := reader.readRegisters(reader.common, SUNSPEC_COMMON_LENGTH+2)
	if err != nil {
		return nil, err
	}
	return &ACMeterInfo{
		Manufacturer: decodeString(c1Mn.in(block)),
		Model:        decodeString(c1Md.in(block)),
		Options:      decodeString(c1Opt.in(block)),
		Version:      decodeString(c1Vr.in(block)),
		Serial:       decodeString(c1SN.in(block)),
	}, nil
}

func (reader *ACMeterIntSFModbusReader) GetCurrentPowerFlowWatt() (float64, error) {
	regs, err := reader.readRegisters(reader.acMeter+m203W, m203WSF-m203W+1)
	if err != nil {
		return 0, err
	}
	return reader.applySFint16(int16(regs[0]), regs[m203WSF-m203W]), nil
}

func (reader *ACMeterIntSFModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	// one read covers every point up to TotWh_SF
	regs, err := reader.readRegisters(reader.acMeter, m203TotWhSF+1)
	if err != nil {
		return nil, err
	}
	power := reader.applySFint16(int16(regs[m203W]), regs[m203WSF])
	energy := func(offset int) float64 {
		return reader.applySFuint32(joinWords(regs[offset], regs[offset+1]), regs[m203TotWhSF]) / 1000
	}

	flow := &ACMeterPowerFlow{
		CurrentPowerFlowWatt:   power,
		CurrentImportPowerWatt: math.Max(power, 0),
		CurrentExportPowerWatt: math.Max(-power, 0),
		TotalEnergyImportedKWh: energy(m203TotWhImp),
		TotalEnergyExportedKWh: energy(m203TotWhExp),
		Frequency:              reader.applySF(regs[m203Hz], regs[m203HzSF]),
	}
	for i := 0; i < 3; i++ {
		flow.PhaseVoltage[i] = reader.applySF(regs[m203PhVphA+i], regs[m203VSF])
		flow.PhaseCurrent[i] = reader.applySFint16(int16(regs[m203AphA+i]), regs[m203ASF])
	}
	return flow, nil
}

func (reader *ACMeterIntSFModbusReader) GetPowerSetpointWatt() (int32, error) {
	v, err := reader.readUint32(SETPOINT_ADDRESS)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func (reader *ACMeterIntSFModbusReader) SetPowerSetpointWatt(watts int32) error {
	hi, lo := splitWords(uint32(watts))
	return reader.writeRegisters(SETPOINT_ADDRESS, []uint16{hi, lo})
}

func (reader *ACMeterIntSFModbusReader) checkMarker() error {
	marker, err := reader.readRegisters(SUNSPEC_BASE_ADDRESS, 2)
	if err != nil {
		return err
	}
	if marker[0] != sunsMarker[0] || marker[1] != sunsMarker[1] {
		return ErrNotSunSpec
	}
	return nil
}

// survey walks the model headers after the marker until both blocks are known.
func (reader *ACMeterIntSFModbusReader) survey() error {
	if err := reader.checkMarker(); err != nil {
		return err
	}
	addr := SUNSPEC_BASE_ADDRESS + 2
	for n := 0; n < maxSurveyBlocks && (reader.common == 0 || reader.acMeter == 0); n++ {
		header, err := reader.readRegisters(addr, 2)
		if err != nil {
			return err
		}
		id, length := header[0], header[1]
		if id == SUNSPEC_WK_END {
			break
		}
		switch id {
		case SUNSPEC_WK_COMMON:
			reader.common = addr
		case 201, 202, 203, 204:
			reader.acMeter = addr
		}
		addr += length + 2
	}
	if reader.common == 0 || reader.acMeter == 0 {
		return ErrMissingBlocks
	}
	return nil
}
