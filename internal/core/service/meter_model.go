package service

import (
	"math"
	"time"

	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/core/port"
)

const (
	SMOOTHING_CEILING_KW = 1.9
	SMOOTHING_WEIGHT     = 0.9
	TARGET_WEIGHT        = 0.1
	TARGET_MIN_KW        = 0.2
	TARGET_MAX_KW        = 1.8
	NOMINAL_VOLTAGE      = 230.0
	VOLTAGE_JITTER       = 2.0
	PHASES               = 3
)

// MeterModel owns the electrical state of the simulated meter.
// It is not safe for concurrent use; the meter actor serializes every call.
type MeterModel struct {
	state    domain.MeterState
	lastTick time.Time
	random   port.RandomSource
	location *time.Location
}

func NewMeterModel(initial domain.MeterState, random port.RandomSource, location *time.Location, now time.Time) *MeterModel {
	if location == nil {
		location = time.Local
	}
	return &MeterModel{
		state:    initial,
		lastTick: now,
		random:   random,
		location: location,
	}
}

// Advance moves the model to now and returns the tariff the energy was booked on.
func (m *MeterModel) Advance(now time.Time) domain.Tariff {
	dt := now.Sub(m.lastTick).Seconds()
	if dt < 0 {
		dt = 0
	}
	m.lastTick = now

	if m.state.Power < SMOOTHING_CEILING_KW {
		target := m.uniform(TARGET_MIN_KW, TARGET_MAX_KW)
		m.state.Power = SMOOTHING_WEIGHT*m.state.Power + TARGET_WEIGHT*target
	}

	deltaKWh := m.state.Power * dt / 3600
	tariff := domain.TariffAt(now.In(m.location))

	if m.state.Power >= 0 {
		if tariff == domain.TARIFF_LOW {
			m.state.EnergyT1 += deltaKWh
		} else {
			m.state.EnergyT2 += deltaKWh
		}
	} else {
		if tariff == domain.TARIFF_LOW {
			m.state.EnergyReturnT1 += math.Abs(deltaKWh)
		} else {
			m.state.EnergyReturnT2 += math.Abs(deltaKWh)
		}
	}

	return tariff
}

// Voltages draws an independent 230 V +/- 2 V value per phase.
func (m *MeterModel) Voltages() [PHASES]float64 {
	var v [PHASES]float64
	for i := range v {
		v[i] = NOMINAL_VOLTAGE + m.uniform(-VOLTAGE_JITTER, VOLTAGE_JITTER)
	}
	return v
}

// Currents splits the power evenly over the phases. A phase without a positive
// voltage reports zero current.
func (m *MeterModel) Currents(voltages [PHASES]float64) [PHASES]float64 {
	perPhaseWatt := m.state.Power * 1000 / PHASES
	var c [PHASES]float64
	for i, v := range voltages {
		if v <= 0 {
			c[i] = 0
			continue
		}
		c[i] = perPhaseWatt / v
	}
	return c
}

// SetPower replaces the current power unconditionally.
func (m *MeterModel) SetPower(kw float64) {
	m.state.Power = kw
}

func (m *MeterModel) State() domain.MeterState {
	return m.state
}

func (m *MeterModel) Location() *time.Location {
	return m.location
}

func (m *MeterModel) uniform(a, b float64) float64 {
	return a + (b-a)*m.random.Float64()
}
