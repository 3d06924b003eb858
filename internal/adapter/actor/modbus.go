package actor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/berfenger/p1sim/internal/config"
	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/util/actorutil"
	"github.com/berfenger/p1sim/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

const (
	modbusStartTimeout    = 5 * time.Second
	modbusIdleTimeout     = 30 * time.Second
	modbusSetpointTimeout = 2 * time.Second
	modbusGridFrequency   = 50.0
)

// ModbusActor serves the meter as a SunSpec model 203 device and accepts
// setpoints written to the setpoint registers.
type ModbusActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	image          *sunspec_modbus.ACMeterImage
	server         *sunspec_modbus.ACMeterServer
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger
}

type modbusStarted struct {
	Error error
}

func NewModbusActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		state.image = sunspec_modbus.NewACMeterImage(ModbusDeviceInfo(state.config.Meter.Identification), 1)
		handler := sunspec_modbus.NewACMeterRequestHandler(state.image, state.setpointFunc(ctx), state.logger)
		server, err := sunspec_modbus.CreateACMeterServer(state.config.Modbus.URL, state.config.Modbus.MaxClients, modbusIdleTimeout, handler)
		if err != nil {
			panic(err)
		}
		state.server = server

		actorutil.NewBackgroundTask(ctx, func() modbusStarted {
			return modbusStarted{Error: server.Start()}
		}, func(err error) modbusStarted {
			return modbusStarted{Error: fmt.Errorf("modbus server start: %w", err)}
		}).WithTimeout(modbusStartTimeout).PipeTo(ctx.Self())
	case modbusStarted:
		if msg.Error != nil {
			// let supervisor decide
			state.logger.Error("modbus@starting could not start server", zap.Error(msg.Error))
			panic(msg.Error)
		}
		state.logger.Info("modbus@starting listening", zap.String("url", state.config.Modbus.URL))
		state.subscribeEventStream(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case onEventStreamMessage:
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("modbus@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "listening",
		})
	case onEventStreamMessage:
		if event, ok := msg.message.(domain.ReadingUpdatedEvent); ok {
			state.image.Update(ReadingToACMeterValues(event.Reading))
		}
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("modbus@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// setpointFunc runs on the server goroutines, so it talks to the parent through
// the root context instead of ctx.
func (state *ModbusActor) setpointFunc(ctx actor.Context) sunspec_modbus.SetpointFunc {
	root := ctx.ActorSystem().Root
	parent := ctx.Parent()
	return func(powerKW float64) error {
		if parent == nil {
			return errors.New("modbus actor has no parent")
		}
		res, err := root.RequestFuture(parent, domain.SetPowerRequest{
			Power:  powerKW,
			Source: "modbus",
		}, modbusSetpointTimeout).Result()
		if err != nil {
			return err
		}
		resp, ok := res.(domain.SetPowerResponse)
		if !ok {
			return fmt.Errorf("unexpected setpoint response %T", res)
		}
		return resp.GetResponseError()
	}
}

func (state *ModbusActor) subscribeEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		ctx.Send(ctx.Self(), onEventStreamMessage{
			message: value,
		})
	})
}

func (state *ModbusActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.server != nil {
		state.logger.Debug("modbus: stop server")
		if err := state.server.Stop(); err != nil {
			state.logger.Warn("modbus: could not stop server", zap.Error(err))
		}
		state.server = nil
	}
}

func ModbusDeviceInfo(identification string) sunspec_modbus.ACMeterInfo {
	serial := strings.TrimPrefix(identification, "/")
	if len(serial) > 32 {
		serial = serial[:32]
	}
	return sunspec_modbus.ACMeterInfo{
		Manufacturer: "p1sim",
		Model:        "DSMR P1 meter",
		Version:      versioninfo.Short(),
		Serial:       serial,
	}
}

func ReadingToACMeterValues(reading domain.Reading) sunspec_modbus.ACMeterValues {
	return sunspec_modbus.ACMeterValues{
		PowerWatt:        reading.Power * 1000,
		PhaseVoltage:     reading.Voltages,
		PhaseCurrent:     reading.Currents,
		FrequencyHz:      modbusGridFrequency,
		EnergyImportedWh: (reading.EnergyT1 + reading.EnergyT2) * 1000,
		EnergyExportedWh: (reading.EnergyReturnT1 + reading.EnergyReturnT2) * 1000,
	}
}
