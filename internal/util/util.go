package util

import (
	"github.com/berfenger/p1sim/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Meter: config.MeterConfig{
			IntervalMillis: 100,
			Identification: "/SIMULATOR",
			Timezone:       "UTC",
			Seed:           42,
			InitialPower:   0.5,
			EnergyT1:       9159.772,
			EnergyT2:       6069.669,
		},
		Sink: config.SinkConfig{
			Type:              config.SINK_TYPE_STDOUT,
			OpenTimeoutMillis: 1000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "p1sim",
			PublishState:     true,
			HADiscoveryTopic: "homeassistant",
		},
		Modbus: config.ModbusConfig{
			URL:        "tcp://127.0.0.1:5502",
			MaxClients: 2,
		},
		Port: 8080,
	}
}
