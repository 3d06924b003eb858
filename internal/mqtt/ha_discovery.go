package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/berfenger/p1sim/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
	Min               float64           `json:"min,omitempty"`
	Max               float64           `json:"max,omitempty"`
	Step              float64           `json:"step,omitempty"`
	Mode              string            `json:"mode,omitempty"`
	InitialValue      float64           `json:"initial,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// DiscoveryMessage is one retained Home Assistant config payload.
type DiscoveryMessage struct {
	Topic   string
	Payload []byte
}

// DiscoveryMessages renders the config of every sensor, then every number entity.
func DiscoveryMessages(client *MQTTClient, sensors []domain.GenericSensor, inputNumbers []domain.GenericInputNumber) ([]DiscoveryMessage, error) {
	messages := make([]DiscoveryMessage, 0, len(sensors)+len(inputNumbers))
	add := func(topic string, cfg HADiscoveryConfig) error {
		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("discovery %s: %w", topic, err)
		}
		messages = append(messages, DiscoveryMessage{Topic: topic, Payload: payload})
		return nil
	}
	for _, sensor := range sensors {
		if err := add(HADiscoverySensorTopic(client.DiscoveryTopic(), sensor), GenericSensorToHADiscoveryMessage(client, sensor)); err != nil {
			return nil, err
		}
	}
	for _, number := range inputNumbers {
		if err := add(HADiscoveryInputNumberTopic(client.DiscoveryTopic(), number), GenericInputNumberToHADiscoveryMessage(client, number)); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

func HADiscoverySensorTopic(discoveryTopic string, sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryTopic, sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func HADiscoveryInputNumberTopic(discoveryTopic string, inputNumber domain.GenericInputNumber) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryTopic, numberComponent, inputNumber.Device.Id, inputNumber.Id)
}

func sensorStateTopic(client *MQTTClient, sensor domain.GenericSensor) string {
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		return client.BridgeStateTopic()
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		return client.BinarySensorStateTopic(sensor.Id)
	default:
		return client.SensorStateTopic(sensor.Id)
	}
}

// GenericSensorToHADiscoveryMessage describes a read-only entity. Every entity
// goes unavailable with the bridge.
func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	cfg := HADiscoveryConfig{
		Platform:          "mqtt",
		Device:            haDevice(sensor.Device),
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		StateTopic:        sensorStateTopic(client, sensor),
		AvTopic:           client.BridgeStateTopic(),
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		EntityCategory:    sensor.EntityCategory,
		EnabledByDefault:  sensor.EnabledByDefault,
	}
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		cfg.PayloadOn, cfg.PayloadOff = MQTT_PAYLOAD_ONLINE, MQTT_PAYLOAD_OFFLINE
	}
	return cfg
}

// GenericInputNumberToHADiscoveryMessage describes a writable number bound to its command topic.
func GenericInputNumberToHADiscoveryMessage(client *MQTTClient, number domain.GenericInputNumber) HADiscoveryConfig {
	return HADiscoveryConfig{
		Platform:          "mqtt",
		Device:            haDevice(number.Device),
		Name:              number.Name,
		UniqueId:          number.UniqueId,
		Icon:              number.Icon,
		StateTopic:        client.InputNumberStateTopic(number.Id),
		CommandTopic:      client.InputNumberCommandTopic(number.Id),
		AvTopic:           client.BridgeStateTopic(),
		UnitOfMeasurement: number.UnitOfMeasurement,
		Min:               number.Min,
		Max:               number.Max,
		Step:              number.Step,
		Mode:              number.Mode,
		InitialValue:      number.InitialValue,
	}
}

func haDevice(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Name:         d.Name,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		Version:      d.Version,
		ViaDevice:    d.ViaDevice,
	}
}
