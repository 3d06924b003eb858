package domain

// SensorUpdateEvent is a new state for one Home Assistant entity.
type SensorUpdateEvent interface {
	SensorId() string
}

// SensorRef names the entity an update belongs to.
type SensorRef struct {
	Id string
}

func (r SensorRef) SensorId() string {
	return r.Id
}

type FloatSensorUpdateEvent struct {
	SensorRef
	Value    float64
	Decimals uint
}

type TextSensorUpdateEvent struct {
	SensorRef
	Value string
}

// BridgeStateUpdateEvent reports whether the simulator is connected to the broker.
type BridgeStateUpdateEvent struct {
	SensorRef
	Online bool
}

// InputNumberSensorUpdateEvent echoes the current value of a writable number.
type InputNumberSensorUpdateEvent struct {
	SensorRef
	Value    float64
	Decimals uint
}

// ReadingUpdatedEvent is published on the event stream after each emitted telegram.
type ReadingUpdatedEvent struct {
	Reading Reading
	Size    int
}

// EmissionFailedEvent is sent by the meter actor to its parent when the sink fails.
type EmissionFailedEvent struct {
	Error error
}
