package dsmr

const (
	OBIS_TIMESTAMP           = "0-0:1.0.0"
	OBIS_TARIFF_INDICATOR    = "0-0:96.14.0"
	OBIS_ENERGY_DELIVERED_T1 = "1-0:1.8.1"
	OBIS_ENERGY_DELIVERED_T2 = "1-0:1.8.2"
	OBIS_ENERGY_RETURNED_T1  = "1-0:2.8.1"
	OBIS_ENERGY_RETURNED_T2  = "1-0:2.8.2"
	OBIS_POWER_DELIVERED     = "1-0:1.7.0"
	OBIS_POWER_RETURNED      = "1-0:2.7.0"
	OBIS_VOLTAGE_L1          = "1-0:32.7.0"
	OBIS_VOLTAGE_L2          = "1-0:52.7.0"
	OBIS_VOLTAGE_L3          = "1-0:72.7.0"
	OBIS_CURRENT_L1          = "1-0:31.7.0"
	OBIS_CURRENT_L2          = "1-0:51.7.0"
	OBIS_CURRENT_L3          = "1-0:71.7.0"
	DEFAULT_IDENTIFICATION   = "/SIMULATOR"
	LINE_TERMINATOR          = "\r\n"
	TRAILER_MARKER           = '!'
	TIMESTAMP_LAYOUT         = "060102150405"
	TIMESTAMP_SUFFIX_SUMMER  = "S"
	TIMESTAMP_SUFFIX_WINTER  = "W"
	UNIT_ENERGY              = "kWh"
	UNIT_POWER               = "kW"
	UNIT_VOLTAGE             = "V"
	UNIT_CURRENT             = "A"
)
