package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE         = "bridge"
	SENSOR_ID_POWER_DELIVERED      = "power_delivered"
	SENSOR_ID_POWER_RETURNED       = "power_returned"
	SENSOR_ID_ENERGY_DELIVERED_T1  = "energy_delivered_tariff1"
	SENSOR_ID_ENERGY_DELIVERED_T2  = "energy_delivered_tariff2"
	SENSOR_ID_ENERGY_RETURNED_T1   = "energy_returned_tariff1"
	SENSOR_ID_ENERGY_RETURNED_T2   = "energy_returned_tariff2"
	SENSOR_ID_TARIFF               = "electricity_tariff"
	SENSOR_ID_VOLTAGE_L1           = "voltage_l1"
	SENSOR_ID_VOLTAGE_L2           = "voltage_l2"
	SENSOR_ID_VOLTAGE_L3           = "voltage_l3"
	SENSOR_ID_CURRENT_L1           = "current_l1"
	SENSOR_ID_CURRENT_L2           = "current_l2"
	SENSOR_ID_CURRENT_L3           = "current_l3"
	SENSOR_ID_TELEGRAM_SIZE        = "telegram_size"
	INPUT_NUMBER_ID_POWER_SETPOINT = "power_setpoint"
	STATE_CLASS_MEASUREMENT        = "measurement"
	STATE_CLASS_TOTAL_INCREASING   = "total_increasing"
	DEVICE_CLASS_CURRENT           = "current"
	DEVICE_CLASS_ENERGY            = "energy"
	DEVICE_CLASS_POWER             = "power"
	DEVICE_CLASS_VOLTAGE           = "voltage"
	DEVICE_CLASS_CONNECTIVITY      = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC        = "diagnostic"
	ENTITY_CLASS_CONFIG            = "config"
	SENSOR_TYPE_SENSOR             = "sensor"
	SENSOR_TYPE_BINARY             = "binary_sensor"
	INPUT_NUMBER_MODE_BOX          = "box"
	INPUT_NUMBER_MODE_SLIDER       = "slider"
	SETPOINT_MIN_KW                = -99.999
	SETPOINT_MAX_KW                = 99.999
	SETPOINT_STEP_KW               = 0.001
)

var (
	PhaseVoltageSensorIds = [3]string{SENSOR_ID_VOLTAGE_L1, SENSOR_ID_VOLTAGE_L2, SENSOR_ID_VOLTAGE_L3}
	PhaseCurrentSensorIds = [3]string{SENSOR_ID_CURRENT_L1, SENSOR_ID_CURRENT_L2, SENSOR_ID_CURRENT_L3}
)

// Device, GenericSensor and GenericInputNumber describe Home Assistant entities
// independently of the MQTT discovery payload.
type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // voltage, current, power, energy
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericInputNumber struct {
	Device            Device
	Id                string
	Name              string
	UniqueId          string
	Icon              string
	UnitOfMeasurement string
	Max               float64
	Min               float64
	Step              float64
	Mode              string
	InitialValue      float64
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("p1sim_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "p1sim",
		Model:        "P1 simulator bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("P1 simulator %s", md5HashShort(baseTopic)),
	}
}

// MeterDevice describes the simulated meter, keyed by its identification line.
func MeterDevice(identification string) Device {
	return Device{
		Id:           fmt.Sprintf("p1sim_meter_%s", md5HashShort(identification)),
		Manufacturer: "p1sim",
		Model:        "DSMR P1 meter",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Smart meter %s", identification),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// MeterSensors lists one sensor per telegram field. Only the first one carries the full device.
func MeterSensors(meterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	measurement := func(id, name, deviceClass, unit string) GenericSensor {
		return GenericSensor{
			Device:            IdDevice(meterDevice),
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       deviceClass,
			UnitOfMeasurement: unit,
			UniqueId:          uniqueId(meterDevice.Id, id),
		}
	}
	total := func(id, name string) GenericSensor {
		return GenericSensor{
			Device:            IdDevice(meterDevice),
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_TOTAL_INCREASING,
			DeviceClass:       DEVICE_CLASS_ENERGY,
			UnitOfMeasurement: "kWh",
			UniqueId:          uniqueId(meterDevice.Id, id),
		}
	}

	sensors = append(sensors, measurement(SENSOR_ID_POWER_DELIVERED, "Power delivered", DEVICE_CLASS_POWER, "kW"))
	sensors[0].Device = meterDevice
	sensors = append(sensors, measurement(SENSOR_ID_POWER_RETURNED, "Power returned", DEVICE_CLASS_POWER, "kW"))

	sensors = append(sensors, total(SENSOR_ID_ENERGY_DELIVERED_T1, "Energy delivered tariff 1"))
	sensors = append(sensors, total(SENSOR_ID_ENERGY_DELIVERED_T2, "Energy delivered tariff 2"))
	sensors = append(sensors, total(SENSOR_ID_ENERGY_RETURNED_T1, "Energy returned tariff 1"))
	sensors = append(sensors, total(SENSOR_ID_ENERGY_RETURNED_T2, "Energy returned tariff 2"))

	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(meterDevice),
		Id:         SENSOR_ID_TARIFF,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Electricity tariff",
		Icon:       "mdi:theme-light-dark",
		UniqueId:   uniqueId(meterDevice.Id, SENSOR_ID_TARIFF),
	})

	for i := range PhaseVoltageSensorIds {
		sensors = append(sensors, measurement(PhaseVoltageSensorIds[i], fmt.Sprintf("Voltage phase L%d", i+1), DEVICE_CLASS_VOLTAGE, "V"))
	}
	for i := range PhaseCurrentSensorIds {
		sensors = append(sensors, measurement(PhaseCurrentSensorIds[i], fmt.Sprintf("Current phase L%d", i+1), DEVICE_CLASS_CURRENT, "A"))
	}

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(meterDevice),
		Id:                SENSOR_ID_TELEGRAM_SIZE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Telegram size",
		StateClass:        STATE_CLASS_MEASUREMENT,
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UnitOfMeasurement: "B",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_TELEGRAM_SIZE),
	})

	return sensors
}

func SetpointInputNumbers(meterDevice Device, initial float64) []GenericInputNumber {
	return []GenericInputNumber{{
		Device:            IdDevice(meterDevice),
		Id:                INPUT_NUMBER_ID_POWER_SETPOINT,
		Name:              "Power setpoint",
		Icon:              "mdi:transmission-tower-import",
		UnitOfMeasurement: "kW",
		Min:               SETPOINT_MIN_KW,
		Max:               SETPOINT_MAX_KW,
		Step:              SETPOINT_STEP_KW,
		Mode:              INPUT_NUMBER_MODE_BOX,
		InitialValue:      initial,
		UniqueId:          uniqueId(meterDevice.Id, INPUT_NUMBER_ID_POWER_SETPOINT),
	}}
}

func uniqueId(deviceId string, sensorId string) string {
	return fmt.Sprintf("%s_%s", deviceId, sensorId)
}

func optionalBool(value bool) *bool {
	return &value
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:8]
}
