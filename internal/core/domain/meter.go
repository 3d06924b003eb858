package domain

import (
	"time"
)

type Tariff uint8

const (
	TARIFF_LOW  Tariff = 1
	TARIFF_HIGH Tariff = 2
)

// TariffAt classifies t by its wall clock hour: Low from 23:00 until 07:00, High otherwise.
func TariffAt(t time.Time) Tariff {
	hour := t.Hour()
	if hour < 7 || hour >= 23 {
		return TARIFF_LOW
	}
	return TARIFF_HIGH
}

func (t Tariff) String() string {
	switch t {
	case TARIFF_LOW:
		return "low"
	case TARIFF_HIGH:
		return "high"
	default:
		return "unknown"
	}
}

// MeterState is the cumulative and instantaneous state of the simulated meter.
type MeterState struct {
	EnergyT1       float64 // kWh consumed, low tariff
	EnergyT2       float64 // kWh consumed, high tariff
	EnergyReturnT1 float64 // kWh returned, low tariff
	EnergyReturnT2 float64 // kWh returned, high tariff
	Power          float64 // kW, positive = consumption
}

// Reading is the snapshot rendered into one telegram.
type Reading struct {
	Timestamp      time.Time  `json:"timestamp"`
	Tariff         Tariff     `json:"tariff"`
	EnergyT1       float64    `json:"energy_t1_kwh"`
	EnergyT2       float64    `json:"energy_t2_kwh"`
	EnergyReturnT1 float64    `json:"energy_return_t1_kwh"`
	EnergyReturnT2 float64    `json:"energy_return_t2_kwh"`
	Power          float64    `json:"power_kw"`
	Voltages       [3]float64 `json:"voltages_v"`
	Currents       [3]float64 `json:"currents_a"`
}
