package sink

import (
	"fmt"
	"io"

	"github.com/berfenger/p1sim/internal/config"
	"github.com/berfenger/p1sim/internal/core/port"
)

// NewFromConfig builds the configured sink. The sink is returned unopened.
func NewFromConfig(cfg config.SinkConfig, stdout io.Writer) (port.TelegramSink, error) {
	switch cfg.Type {
	case config.SINK_TYPE_STDOUT, "":
		return NewWriterSink(stdout), nil
	case config.SINK_TYPE_FILE:
		return NewFileSink(cfg.File.Path), nil
	case config.SINK_TYPE_SERIAL:
		return NewSerialSink(cfg.Serial.Port, cfg.Serial.BaudRate), nil
	case config.SINK_TYPE_TCP:
		return NewTCPSink(cfg.TCP.Address, cfg.OpenTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}
