package dsmr

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingTrailer   = errors.New("dsmr: telegram trailer not found")
	ErrChecksumMismatch = errors.New("dsmr: checksum mismatch")
)

// Telegram holds every value carried by one P1 message.
type Telegram struct {
	Identification string
	Timestamp      time.Time
	Tariff         uint8

	EnergyDeliveredT1 float64 // kWh
	EnergyDeliveredT2 float64 // kWh
	EnergyReturnedT1  float64 // kWh
	EnergyReturnedT2  float64 // kWh

	// Signed active power in kW. Only the magnitude is rendered.
	Power float64

	Voltages [3]float64 // V
	Currents [3]float64 // A
}

type field struct {
	width    int
	decimals int
}

var (
	energyField  = field{width: 9, decimals: 3}
	powerField   = field{width: 6, decimals: 3}
	voltageField = field{width: 5, decimals: 1}
	currentField = field{width: 3, decimals: 0}
)

// Render builds the complete telegram, trailer checksum included.
func Render(t Telegram) []byte {
	ident := t.Identification
	if ident == "" {
		ident = DEFAULT_IDENTIFICATION
	}

	var b strings.Builder
	b.WriteString(ident)
	b.WriteString(LINE_TERMINATOR)
	line(&b, OBIS_TIMESTAMP, Timestamp(t.Timestamp), "")
	line(&b, OBIS_TARIFF_INDICATOR, fmt.Sprintf("%04d", t.Tariff), "")
	line(&b, OBIS_ENERGY_DELIVERED_T1, energyField.unsigned(t.EnergyDeliveredT1), UNIT_ENERGY)
	line(&b, OBIS_ENERGY_DELIVERED_T2, energyField.unsigned(t.EnergyDeliveredT2), UNIT_ENERGY)
	line(&b, OBIS_ENERGY_RETURNED_T1, energyField.unsigned(t.EnergyReturnedT1), UNIT_ENERGY)
	line(&b, OBIS_ENERGY_RETURNED_T2, energyField.unsigned(t.EnergyReturnedT2), UNIT_ENERGY)
	line(&b, OBIS_POWER_DELIVERED, powerField.unsigned(math.Abs(t.Power)), UNIT_POWER)
	line(&b, OBIS_POWER_RETURNED, powerField.unsigned(0), UNIT_POWER)
	line(&b, OBIS_VOLTAGE_L1, voltageField.unsigned(t.Voltages[0]), UNIT_VOLTAGE)
	line(&b, OBIS_VOLTAGE_L2, voltageField.unsigned(t.Voltages[1]), UNIT_VOLTAGE)
	line(&b, OBIS_VOLTAGE_L3, voltageField.unsigned(t.Voltages[2]), UNIT_VOLTAGE)
	line(&b, OBIS_CURRENT_L1, currentField.unsigned(math.Abs(t.Currents[0])), UNIT_CURRENT)
	line(&b, OBIS_CURRENT_L2, currentField.unsigned(math.Abs(t.Currents[1])), UNIT_CURRENT)
	line(&b, OBIS_CURRENT_L3, currentField.unsigned(math.Abs(t.Currents[2])), UNIT_CURRENT)
	b.WriteByte(TRAILER_MARKER)

	frame := []byte(b.String())
	return append(frame, fmt.Sprintf("%04X%s", Checksum(frame), LINE_TERMINATOR)...)
}

// Timestamp renders t as YYMMDDhhmmss followed by S (daylight saving) or W.
// The suffix follows the zone offset in effect at t in t's own location.
func Timestamp(t time.Time) string {
	suffix := TIMESTAMP_SUFFIX_WINTER
	if t.IsDST() {
		suffix = TIMESTAMP_SUFFIX_SUMMER
	}
	return t.Format(TIMESTAMP_LAYOUT) + suffix
}

// Verify checks the trailer checksum of a rendered telegram.
func Verify(frame []byte) error {
	idx := bytes.LastIndexByte(frame, TRAILER_MARKER)
	if idx < 0 {
		return ErrMissingTrailer
	}
	trailer := bytes.TrimSuffix(frame[idx+1:], []byte(LINE_TERMINATOR))
	if len(trailer) != 4 {
		return ErrMissingTrailer
	}
	expected, err := strconv.ParseUint(string(trailer), 16, 16)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingTrailer, err)
	}
	actual := Checksum(frame[:idx+1])
	if uint16(expected) != actual {
		return fmt.Errorf("%w: trailer %04X, computed %04X", ErrChecksumMismatch, expected, actual)
	}
	return nil
}

func line(b *strings.Builder, obis, value, unit string) {
	b.WriteString(obis)
	b.WriteByte('(')
	b.WriteString(value)
	b.WriteString(unit)
	b.WriteByte(')')
	b.WriteString(LINE_TERMINATOR)
}

// unsigned renders a zero padded fixed width value. Negative inputs clamp to zero,
// values that do not fit saturate to the largest representable value.
func (f field) unsigned(v float64) string {
	if !(v > 0) {
		v = 0
	}
	if math.IsInf(v, 1) {
		return f.max()
	}
	s := strconv.FormatFloat(v, 'f', f.decimals, 64)
	if len(s) > f.width {
		return f.max()
	}
	return strings.Repeat("0", f.width-len(s)) + s
}

func (f field) max() string {
	digits := f.width
	if f.decimals > 0 {
		digits--
	}
	s := strings.Repeat("9", digits-f.decimals)
	if f.decimals > 0 {
		s += "." + strings.Repeat("9", f.decimals)
	}
	return s
}
