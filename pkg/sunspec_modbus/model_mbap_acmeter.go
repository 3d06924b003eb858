package sunspec_modbus

type ACMeterInfo struct {
	Manufacturer string
	Model        string
	Options      string
	Version      string
	Serial       string
}

// ACMeterValues is one snapshot of the simulated meter, as exposed by model 203.
type ACMeterValues struct {
	// Positive = import. Negative = export
	PowerWatt    float64
	PhaseVoltage [3]float64
	PhaseCurrent [3]float64
	FrequencyHz  float64
	// Lifetime imported energy in Wh
	EnergyImportedWh float64
	// Lifetime exported energy in Wh
	EnergyExportedWh float64
}

type ACMeterPowerFlow struct {
	// Current AC power flow. Positive = import. Negative = export
	CurrentPowerFlowWatt float64
	// Current import AC power
	CurrentImportPowerWatt float64
	// Current export AC power
	CurrentExportPowerWatt float64
	// Lifetime exported energy in kWh
	TotalEnergyExportedKWh float64
	// Lifetime imported energy in kWh
	TotalEnergyImportedKWh float64
	// Grid frequency
	Frequency float64
	// Grid phase voltages
	PhaseVoltage [3]float64
	// Phase currents
	PhaseCurrent [3]float64
}

type ACMeterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*ACMeterInfo, error)
	GetCurrentPowerFlowWatt() (float64, error)
	GetPowerFlow() (*ACMeterPowerFlow, error)
	GetPowerSetpointWatt() (int32, error)
	SetPowerSetpointWatt(watts int32) error
}
