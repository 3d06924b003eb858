package events

import (
	. "github.com/berfenger/p1sim/internal/core/domain"
)

func floatEvent(id string, value float64, decimals uint) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorRef: SensorRef{Id: id},
		Value:     value,
		Decimals:  decimals,
	}
}

// ReadingToUpdateEvents splits an emitted reading into one update per meter sensor.
func ReadingToUpdateEvents(reading Reading, telegramSize int) []SensorUpdateEvent {
	var events []SensorUpdateEvent

	// Power, split by direction like the telegram does
	var delivered, returned float64
	if reading.Power > 0 {
		delivered = reading.Power
	} else if reading.Power < 0 {
		returned = -reading.Power
	}
	events = append(events, floatEvent(SENSOR_ID_POWER_DELIVERED, delivered, 3))
	events = append(events, floatEvent(SENSOR_ID_POWER_RETURNED, returned, 3))

	// Energy registers
	events = append(events, floatEvent(SENSOR_ID_ENERGY_DELIVERED_T1, reading.EnergyT1, 3))
	events = append(events, floatEvent(SENSOR_ID_ENERGY_DELIVERED_T2, reading.EnergyT2, 3))
	events = append(events, floatEvent(SENSOR_ID_ENERGY_RETURNED_T1, reading.EnergyReturnT1, 3))
	events = append(events, floatEvent(SENSOR_ID_ENERGY_RETURNED_T2, reading.EnergyReturnT2, 3))

	events = append(events, TextSensorUpdateEvent{
		SensorRef: SensorRef{Id: SENSOR_ID_TARIFF},
		Value:     reading.Tariff.String(),
	})

	for i := range PhaseVoltageSensorIds {
		events = append(events, floatEvent(PhaseVoltageSensorIds[i], reading.Voltages[i], 1))
	}
	for i := range PhaseCurrentSensorIds {
		events = append(events, floatEvent(PhaseCurrentSensorIds[i], reading.Currents[i], 2))
	}

	events = append(events, floatEvent(SENSOR_ID_TELEGRAM_SIZE, float64(telegramSize), 0))

	return events
}

func PowerSetpointUpdateEvent(power float64) InputNumberSensorUpdateEvent {
	return InputNumberSensorUpdateEvent{
		SensorRef: SensorRef{Id: INPUT_NUMBER_ID_POWER_SETPOINT},
		Value:     power,
		Decimals:  3,
	}
}

func BridgeStateEvent(online bool) BridgeStateUpdateEvent {
	return BridgeStateUpdateEvent{
		SensorRef: SensorRef{Id: SENSOR_ID_BRIDGE_STATE},
		Online:    online,
	}
}
