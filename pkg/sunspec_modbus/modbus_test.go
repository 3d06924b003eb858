package sunspec_modbus

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testInfo() ACMeterInfo {
	return ACMeterInfo{
		Manufacturer: "p1sim",
		Model:        "DSMR P1 simulator",
		Options:      "203",
		Version:      "1.0.0",
		Serial:       "SIMULATOR",
	}
}

func testValues() ACMeterValues {
	return ACMeterValues{
		PowerWatt:        2500,
		PhaseVoltage:     [3]float64{230.1, 229.8, 231.0},
		PhaseCurrent:     [3]float64{3.62, 3.60, 3.61},
		FrequencyHz:      50,
		EnergyImportedWh: 15229441,
		EnergyExportedWh: 0,
	}
}

func meterRegs(t *testing.T, img *ACMeterImage) []uint16 {
	regs, err := img.Registers(meterBlockAddr, SUNSPEC_METER_LENGTH+2)
	require.NoError(t, err)
	return regs
}

func TestImageLayout(t *testing.T) {
	assert := assert.New(t)

	img := NewACMeterImage(testInfo(), 1)

	head, err := img.Registers(SUNSPEC_BASE_ADDRESS, 4)
	require.NoError(t, err)
	assert.Equal([]uint16{0x5375, 0x6e53, SUNSPEC_WK_COMMON, SUNSPEC_COMMON_LENGTH}, head)

	mn, err := img.Registers(commonBlockAddr+2, 3)
	require.NoError(t, err)
	assert.Equal([]uint16{0x7031, 0x7369, 0x6d00}, mn, "manufacturer p1sim")

	da, err := img.Registers(commonBlockAddr+66, 1)
	require.NoError(t, err)
	assert.Equal([]uint16{1}, da)

	assert.Equal(uint16(40069), uint16(meterBlockAddr))
	m := meterRegs(t, img)
	assert.Equal(SUNSPEC_WK_METER_WYE, m[0])
	assert.Equal(SUNSPEC_METER_LENGTH, m[1])
	assert.Equal(notImplementedInt16, m[m203W], "not implemented before the first update")
	assert.Equal(uint16(0), m[m203TotWhImp])

	end, err := img.Registers(40176, 2)
	require.NoError(t, err)
	assert.Equal([]uint16{SUNSPEC_WK_END, 0}, end)

	_, err = img.Registers(40176, 3)
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)
	_, err = img.Registers(39999, 2)
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)
}

func TestImageUpdate(t *testing.T) {
	assert := assert.New(t)

	img := NewACMeterImage(testInfo(), 1)
	img.Update(testValues())
	m := meterRegs(t, img)

	assert.Equal([]uint16{1083, 362, 360, 361}, m[m203A:m203A+4])
	assert.Equal(int16(-2), int16(m[m203ASF]))
	assert.Equal([]uint16{2303, 2301, 2298, 2310}, m[m203PhV:m203PhV+4])
	assert.Equal(int16(-1), int16(m[m203VSF]))
	assert.Equal(uint16(5000), m[m203Hz])
	assert.Equal(int16(-2), int16(m[m203HzSF]))
	assert.Equal(uint16(2500), m[m203W])
	assert.Equal(uint16(0), m[m203WSF])
	assert.Equal(uint32(15229441), joinWords(m[m203TotWhImp], m[m203TotWhImp+1]))
	assert.Equal(uint32(0), joinWords(m[m203TotWhExp], m[m203TotWhExp+1]))
	assert.Equal(int32(2500), img.PowerWatt())
}

func TestImageScalesLargePower(t *testing.T) {
	assert := assert.New(t)

	img := NewACMeterImage(testInfo(), 1)
	values := testValues()
	values.PowerWatt = -50000
	img.Update(values)
	m := meterRegs(t, img)

	assert.Equal(int16(-5000), int16(m[m203W]))
	assert.Equal(int16(1), int16(m[m203WSF]))
	assert.Equal(uint16(5000), m[m203VA])
	assert.Equal(int32(-50000), img.PowerWatt())
}

type setpointRecorder struct {
	mu     sync.Mutex
	values []float64
	err    error
}

func (r *setpointRecorder) set(powerKW float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.values = append(r.values, powerKW)
	return nil
}

func (r *setpointRecorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.values...)
}

func int32Words(v int32) (uint16, uint16) {
	return splitWords(uint32(v))
}

func TestRequestHandler(t *testing.T) {
	assert := assert.New(t)

	img := NewACMeterImage(testInfo(), 1)
	img.Update(testValues())
	rec := &setpointRecorder{}
	h := NewACMeterRequestHandler(img, rec.set, zap.NewNop())

	res, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{Addr: SETPOINT_ADDRESS, Quantity: 2})
	assert.NoError(err)
	assert.Equal([]uint16{0, 2500}, res)

	hi, lo := int32Words(-1500)
	_, err = h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		Addr: SETPOINT_ADDRESS, Quantity: 2, IsWrite: true, Args: []uint16{hi, lo},
	})
	assert.NoError(err)
	assert.Equal([]float64{-1.5}, rec.snapshot())

	hi, lo = int32Words(100000)
	_, err = h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		Addr: SETPOINT_ADDRESS, Quantity: 2, IsWrite: true, Args: []uint16{hi, lo},
	})
	assert.ErrorIs(err, modbus.ErrIllegalDataValue)

	_, err = h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		Addr: SETPOINT_ADDRESS + 1, Quantity: 1, IsWrite: true, Args: []uint16{1},
	})
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)

	_, err = h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		Addr: SUNSPEC_BASE_ADDRESS, Quantity: 1, IsWrite: true, Args: []uint16{1},
	})
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)

	_, err = h.HandleCoils(&modbus.CoilsRequest{Addr: 0, Quantity: 1})
	assert.ErrorIs(err, modbus.ErrIllegalFunction)
	_, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: SUNSPEC_BASE_ADDRESS, Quantity: 1})
	assert.ErrorIs(err, modbus.ErrIllegalFunction)

	rec.err = errors.New("meter failed")
	hi, lo = int32Words(1000)
	_, err = h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		Addr: SETPOINT_ADDRESS, Quantity: 2, IsWrite: true, Args: []uint16{hi, lo},
	})
	assert.ErrorIs(err, modbus.ErrServerDeviceFailure)
	assert.Equal([]float64{-1.5}, rec.snapshot())
}

func freeTCPURL(t *testing.T) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return fmt.Sprintf("tcp://127.0.0.1:%d", port)
}

func TestServerWithReader(t *testing.T) {
	assert := assert.New(t)

	img := NewACMeterImage(testInfo(), 1)
	img.Update(testValues())
	rec := &setpointRecorder{}

	url := freeTCPURL(t)
	server, err := CreateACMeterServer(url, 2, 5*time.Second, NewACMeterRequestHandler(img, rec.set, zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, server.Start())
	defer server.Stop()

	reader, err := CreateACMeterIntSFModbusReader(url, 1, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, reader.Open())
	defer reader.Close()

	assert.NoError(reader.Validate())

	info, err := reader.GetInfo()
	require.NoError(t, err)
	assert.Equal(testInfo(), *info)

	flow, err := reader.GetPowerFlow()
	require.NoError(t, err)
	assert.InDelta(2500, flow.CurrentPowerFlowWatt, 1e-9)
	assert.InDelta(2500, flow.CurrentImportPowerWatt, 1e-9)
	assert.Equal(0.0, flow.CurrentExportPowerWatt)
	assert.InDelta(15229.441, flow.TotalEnergyImportedKWh, 1e-6)
	assert.InDelta(50, flow.Frequency, 1e-9)
	assert.InDelta(230.1, flow.PhaseVoltage[0], 1e-9)
	assert.InDelta(3.62, flow.PhaseCurrent[0], 1e-9)

	watts, err := reader.GetPowerSetpointWatt()
	require.NoError(t, err)
	assert.Equal(int32(2500), watts)

	assert.NoError(reader.SetPowerSetpointWatt(-750))
	assert.Equal([]float64{-0.75}, rec.snapshot())

	assert.Error(reader.SetPowerSetpointWatt(250000))
	assert.Equal([]float64{-0.75}, rec.snapshot())
}

func TestDecodeString(t *testing.T) {
	words := make([]uint16, 8)
	encodeString(words, "DSMR P1")
	assert.Equal(t, "DSMR P1", decodeString(words))
	assert.Equal(t, "", decodeString(make([]uint16, 4)))

	full := make([]uint16, 2)
	encodeString(full, "p1sim")
	assert.Equal(t, "p1si", decodeString(full), "truncated to the point size")
}

// zeroHandler serves a holding register space of zeros.
type zeroHandler struct {
	modbus.RequestHandler
}

func (zeroHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	return make([]uint16, req.Quantity), nil
}

func TestReaderRejectsNonSunSpecDevice(t *testing.T) {
	url := freeTCPURL(t)
	server, err := modbus.NewServer(&modbus.ServerConfiguration{URL: url, Timeout: 5 * time.Second, MaxClients: 1}, zeroHandler{})
	require.NoError(t, err)
	require.NoError(t, server.Start())
	defer server.Stop()

	reader, err := CreateACMeterIntSFModbusReader(url, 1, 2*time.Second)
	require.NoError(t, err)
	assert.ErrorIs(t, reader.Open(), ErrNotSunSpec)
}
