package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	SINK_TYPE_STDOUT = "stdout"
	SINK_TYPE_FILE   = "file"
	SINK_TYPE_SERIAL = "serial"
	SINK_TYPE_TCP    = "tcp"
)

type Config struct {
	LogLevel zapcore.Level
	Meter    MeterConfig   `mapstructure:"meter"`
	Sink     SinkConfig    `mapstructure:"sink"`
	Console  ConsoleConfig `mapstructure:"console"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Modbus   ModbusConfig  `mapstructure:"modbus"`
	Port     uint          `mapstructure:"port"`
	HttpLog  bool          `mapstructure:"http_log"`
}

type MeterConfig struct {
	IntervalMillis uint32  `mapstructure:"interval_millis"`
	Identification string  `mapstructure:"identification"`
	Timezone       string  `mapstructure:"timezone"`
	Seed           uint64  `mapstructure:"seed"`
	InitialPower   float64 `mapstructure:"initial_power"`
	EnergyT1       float64 `mapstructure:"energy_t1"`
	EnergyT2       float64 `mapstructure:"energy_t2"`
	EnergyReturnT1 float64 `mapstructure:"energy_return_t1"`
	EnergyReturnT2 float64 `mapstructure:"energy_return_t2"`
}

type SinkConfig struct {
	Type              string           `mapstructure:"type"`
	OpenTimeoutMillis uint32           `mapstructure:"open_timeout_millis"`
	Serial            SerialSinkConfig `mapstructure:"serial"`
	TCP               TCPSinkConfig    `mapstructure:"tcp"`
	File              FileSinkConfig   `mapstructure:"file"`
}

type SerialSinkConfig struct {
	Port     string
	BaudRate int `mapstructure:"baud_rate"`
}

type TCPSinkConfig struct {
	Address string
}

type FileSinkConfig struct {
	Path string
}

type ConsoleConfig struct {
	Enable bool
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	PublishState      bool   `mapstructure:"publish_state"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type ModbusConfig struct {
	Enable     bool
	URL        string `mapstructure:"url"`
	MaxClients uint   `mapstructure:"max_clients"`
}

func (c MeterConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMillis) * time.Millisecond
}

// Location resolves the configured timezone, the process local zone when empty.
func (c MeterConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c SinkConfig) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutMillis) * time.Millisecond
}

// Validate checks bounds and normalizes topics in place.
func Validate(cfg *Config) error {
	if cfg.Meter.IntervalMillis < 100 {
		return errors.New("config param meter.interval_millis should be >= 100")
	}
	if !strings.HasPrefix(cfg.Meter.Identification, "/") {
		return errors.New("config param meter.identification must start with '/'")
	}
	if strings.ContainsAny(cfg.Meter.Identification, "\r\n!") {
		return errors.New("config param meter.identification cannot contain line breaks or '!'")
	}
	if _, err := cfg.Meter.Location(); err != nil {
		return errors.New("config param meter.timezone is not a known timezone")
	}
	if cfg.Meter.EnergyT1 < 0 || cfg.Meter.EnergyT2 < 0 || cfg.Meter.EnergyReturnT1 < 0 || cfg.Meter.EnergyReturnT2 < 0 {
		return errors.New("config params meter.energy_* must be >= 0")
	}

	switch cfg.Sink.Type {
	case SINK_TYPE_STDOUT:
	case SINK_TYPE_FILE:
		if cfg.Sink.File.Path == "" {
			return errors.New("config param sink.file.path is required for a file sink")
		}
	case SINK_TYPE_SERIAL:
		if cfg.Sink.Serial.Port == "" {
			return errors.New("config param sink.serial.port is required for a serial sink")
		}
		if cfg.Sink.Serial.BaudRate <= 0 {
			return errors.New("config param sink.serial.baud_rate should be > 0")
		}
	case SINK_TYPE_TCP:
		if cfg.Sink.TCP.Address == "" {
			return errors.New("config param sink.tcp.address is required for a tcp sink")
		}
	default:
		return errors.New("config param sink.type must be one of stdout, file, serial, tcp")
	}

	if cfg.MQTT.Enable {
		baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic

		hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.HADiscoveryTopic = hadBaseTopic
	}

	if cfg.Modbus.Enable && cfg.Modbus.URL == "" {
		return errors.New("config param modbus.url is required when modbus is enabled")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
