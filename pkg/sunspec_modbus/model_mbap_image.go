package sunspec_modbus

import (
	"bytes"
	"math"
	"sync"

	"github.com/simonvetter/modbus"
)

const (
	SUNSPEC_BASE_ADDRESS uint16 = 40000
	SUNSPEC_WK_COMMON    uint16 = 1
	SUNSPEC_WK_METER_WYE uint16 = 203
	SUNSPEC_WK_END       uint16 = 0xFFFF

	SUNSPEC_COMMON_LENGTH uint16 = 65
	SUNSPEC_METER_LENGTH  uint16 = 105

	// int32 watts, high word first
	SETPOINT_ADDRESS     uint16 = 1000
	SETPOINT_LIMIT_WATTS int32  = 99999
)

const (
	commonBlockAddr = SUNSPEC_BASE_ADDRESS + 2
	meterBlockAddr  = commonBlockAddr + 2 + SUNSPEC_COMMON_LENGTH
	endBlockAddr    = meterBlockAddr + 2 + SUNSPEC_METER_LENGTH
	imageSize       = int(endBlockAddr-SUNSPEC_BASE_ADDRESS) + 2

	notImplementedInt16 uint16 = 0x8000
)

var sunsMarker = [2]uint16{0x5375, 0x6e53}

// commonPoint is a model 1 string point: offset from the block id register and size in registers.
type commonPoint struct {
	offset int
	words  int
}

func (p commonPoint) in(block []uint16) []uint16 {
	return block[p.offset : p.offset+p.words]
}

var (
	c1Mn  = commonPoint{offset: 2, words: 16}
	c1Md  = commonPoint{offset: 18, words: 16}
	c1Opt = commonPoint{offset: 34, words: 8}
	c1Vr  = commonPoint{offset: 42, words: 8}
	c1SN  = commonPoint{offset: 50, words: 16}
)

const c1DA = 66

// model 203 point offsets, relative to the block id register
const (
	m203A        = 2
	m203AphA     = 3
	m203ASF      = 6
	m203PhV      = 7
	m203PhVphA   = 8
	m203VSF      = 15
	m203Hz       = 16
	m203HzSF     = 17
	m203W        = 18
	m203WphA     = 19
	m203WSF      = 22
	m203VA       = 23
	m203VASF     = 27
	m203VAR      = 28
	m203VARSF    = 32
	m203PF       = 33
	m203PFSF     = 37
	m203TotWhExp = 38
	m203TotWhImp = 46
	m203TotWhSF  = 54
	m203TotVAhSF = 71
	m203TotVArSF = 104
)

// ACMeterImage is the SunSpec register map of a three phase wye meter
// (common model 1 followed by model 203) starting at 40000.
// It is safe for concurrent use.
type ACMeterImage struct {
	mu        sync.RWMutex
	regs      [imageSize]uint16
	powerWatt int32
}

func NewACMeterImage(info ACMeterInfo, deviceAddress uint16) *ACMeterImage {
	img := &ACMeterImage{}
	r := img.regs[:]
	copy(r, sunsMarker[:])

	c := r[commonBlockAddr-SUNSPEC_BASE_ADDRESS:]
	c[0] = SUNSPEC_WK_COMMON
	c[1] = SUNSPEC_COMMON_LENGTH
	encodeString(c1Mn.in(c), info.Manufacturer)
	encodeString(c1Md.in(c), info.Model)
	encodeString(c1Opt.in(c), info.Options)
	encodeString(c1Vr.in(c), info.Version)
	encodeString(c1SN.in(c), info.Serial)
	c[c1DA] = deviceAddress

	m := int(meterBlockAddr - SUNSPEC_BASE_ADDRESS)
	r[m] = SUNSPEC_WK_METER_WYE
	r[m+1] = SUNSPEC_METER_LENGTH
	for i := m + 2; i < m+2+int(SUNSPEC_METER_LENGTH); i++ {
		r[i] = notImplementedInt16
	}
	// accumulators report 0 when not implemented
	for i := m + m203TotWhExp; i < m+m203TotWhSF; i++ {
		r[i] = 0
	}
	for i := m + m203TotWhSF + 1; i < m+m203TotVAhSF; i++ {
		r[i] = 0
	}
	for i := m + m203TotVAhSF + 1; i < m+m203TotVArSF; i++ {
		r[i] = 0
	}
	// Evt
	r[m+105] = 0
	r[m+106] = 0

	e := int(endBlockAddr - SUNSPEC_BASE_ADDRESS)
	r[e] = SUNSPEC_WK_END
	r[e+1] = 0
	return img
}

// Update refreshes model 203 from a meter snapshot.
func (img *ACMeterImage) Update(values ACMeterValues) {
	img.mu.Lock()
	defer img.mu.Unlock()

	m := img.regs[meterBlockAddr-SUNSPEC_BASE_ADDRESS:]

	totalCurrent := values.PhaseCurrent[0] + values.PhaseCurrent[1] + values.PhaseCurrent[2]
	currents, aSF := scaleInt16([]float64{totalCurrent, values.PhaseCurrent[0], values.PhaseCurrent[1], values.PhaseCurrent[2]}, -2)
	copy(m[m203A:m203A+4], currents)
	m[m203ASF] = uint16(aSF)

	avgVoltage := (values.PhaseVoltage[0] + values.PhaseVoltage[1] + values.PhaseVoltage[2]) / 3
	voltages, vSF := scaleInt16([]float64{avgVoltage, values.PhaseVoltage[0], values.PhaseVoltage[1], values.PhaseVoltage[2]}, -1)
	copy(m[m203PhV:m203PhV+4], voltages)
	m[m203VSF] = uint16(vSF)

	hz, hzSF := scaleInt16([]float64{values.FrequencyHz}, -2)
	m[m203Hz] = hz[0]
	m[m203HzSF] = uint16(hzSF)

	phasePower := values.PowerWatt / 3
	watts, wSF := scaleInt16([]float64{values.PowerWatt, phasePower, phasePower, phasePower}, 0)
	copy(m[m203W:m203W+4], watts)
	m[m203WSF] = uint16(wSF)

	va, vaSF := scaleInt16([]float64{math.Abs(values.PowerWatt), math.Abs(phasePower), math.Abs(phasePower), math.Abs(phasePower)}, 0)
	copy(m[m203VA:m203VA+4], va)
	m[m203VASF] = uint16(vaSF)

	for i := m203VAR; i < m203VAR+4; i++ {
		m[i] = 0
	}
	m[m203VARSF] = 0
	for i := m203PF; i < m203PF+4; i++ {
		m[i] = 100
	}
	m[m203PFSF] = 0

	m[m203TotWhExp], m[m203TotWhExp+1] = splitWords(saturateUint32(values.EnergyExportedWh))
	m[m203TotWhImp], m[m203TotWhImp+1] = splitWords(saturateUint32(values.EnergyImportedWh))
	m[m203TotWhSF] = 0

	img.powerWatt = saturateInt32(values.PowerWatt)
}

// Registers returns a copy of quantity registers starting at addr.
func (img *ACMeterImage) Registers(addr uint16, quantity uint16) ([]uint16, error) {
	start := int(addr) - int(SUNSPEC_BASE_ADDRESS)
	end := start + int(quantity)
	if start < 0 || quantity == 0 || end > imageSize {
		return nil, modbus.ErrIllegalDataAddress
	}
	img.mu.RLock()
	defer img.mu.RUnlock()
	res := make([]uint16, quantity)
	copy(res, img.regs[start:end])
	return res, nil
}

// PowerWatt is the active power of the last update.
func (img *ACMeterImage) PowerWatt() int32 {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.powerWatt
}

func encodeString(dst []uint16, s string) {
	b := []byte(s)
	for i := range dst {
		var hi, lo byte
		if 2*i < len(b) {
			hi = b[2*i]
		}
		if 2*i+1 < len(b) {
			lo = b[2*i+1]
		}
		dst[i] = uint16(hi)<<8 | uint16(lo)
	}
}

// decodeString reverses encodeString, stopping at the first NUL.
func decodeString(src []uint16) string {
	b := make([]byte, 0, 2*len(src))
	for _, w := range src {
		b = append(b, byte(w>>8), byte(w))
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// scaleInt16 picks the smallest scale factor, not lower than minSF, at which
// every value fits an int16, and returns the scaled registers.
func scaleInt16(values []float64, minSF int16) ([]uint16, int16) {
	sf := minSF
	for ; sf < 10; sf++ {
		fits := true
		for _, v := range values {
			if math.Abs(math.Round(v/math.Pow10(int(sf)))) > math.MaxInt16 {
				fits = false
				break
			}
		}
		if fits {
			break
		}
	}
	res := make([]uint16, len(values))
	for i, v := range values {
		res[i] = uint16(saturateInt16(math.Round(v / math.Pow10(int(sf)))))
	}
	return res, sf
}

func saturateInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < -math.MaxInt16:
		return -math.MaxInt16
	}
	return int16(v)
}

func saturateInt32(v float64) int32 {
	v = math.Round(v)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < -math.MaxInt32:
		return -math.MaxInt32
	}
	return int32(v)
}

func saturateUint32(v float64) uint32 {
	v = math.Round(v)
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(v)
}
