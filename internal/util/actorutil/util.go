package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PipeToSelfWithRecover delivers the future's result to the actor itself,
// mapping a failed or timed out future through mapFn.
func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			msg = mapFn(err)
		}
		ctx.Send(ctx.Self(), msg)
	})
}

// NewActorSystemWithZapLogger routes protoactor's own slog output through the zap
// logger at the matching level.
func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	out := zap.NewStdLog(logger).Writer()
	level := slogLevel(logger.Level())
	return actor.NewActorSystem(actor.WithLoggerFactory(func(*actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		}))
	}))
}

func slogLevel(level zapcore.Level) slog.Level {
	switch {
	case level <= zapcore.DebugLevel:
		return slog.LevelDebug
	case level == zapcore.InfoLevel:
		return slog.LevelInfo
	case level == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a command received on an MQTT number topic to an actor request.
// Unknown entities yield a nil request and no error.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	if cmd.DeviceId == domain.INPUT_NUMBER_ID_POWER_SETPOINT {
		value, err := domain.ParseSetpoint(cmd.Payload)
		if err != nil {
			return nil, err
		}
		return domain.SetPowerRequest{
			Power:  value,
			Source: fmt.Sprintf("mqtt:%s", cmd.Command),
		}, nil
	}
	return nil, nil
}
