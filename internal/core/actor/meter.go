package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/p1sim/internal/config"
	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/core/events"
	"github.com/berfenger/p1sim/internal/core/port"
	"github.com/berfenger/p1sim/internal/core/service"
	"github.com/berfenger/p1sim/internal/metrics"
	. "github.com/berfenger/p1sim/internal/util/actorutil"
	"github.com/berfenger/p1sim/pkg/dsmr"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

var ErrMeterFailed = errors.New("meter stopped after a sink failure")

// MeterActor owns the electrical model and the sink. It emits one telegram per
// cadence period and serializes setpoint changes with the emission loop.
type MeterActor struct {
	behavior    actor.Behavior
	stash       *Stash
	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	clock       clock.Clock
	model       *service.MeterModel
	cadence     *service.Cadence
	sink        port.TelegramSink
	eventStream *eventstream.EventStream
	metrics     *metrics.Meter

	identification string
	openTimeout    time.Duration
	lastReading    *domain.Reading
	lastError      error

	logger *zap.Logger
}

type emitTick struct {
}

type sinkOpened struct {
	Error error
}

func NewMeterActor(cfg *config.Config, clk clock.Clock, model *service.MeterModel, sink port.TelegramSink,
	eventStream *eventstream.EventStream, meterMetrics *metrics.Meter, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		clock:          clk,
		model:          model,
		cadence:        service.NewCadence(cfg.Meter.Interval()),
		sink:           sink,
		eventStream:    eventStream,
		metrics:        meterMetrics,
		identification: cfg.Meter.Identification,
		openTimeout:    cfg.Sink.OpenTimeout(),
		logger:         ActorLogger(domain.ACTOR_ID_METER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		NewBackgroundTask(ctx, func() sinkOpened {
			return sinkOpened{Error: state.sink.Open()}
		}, func(err error) sinkOpened {
			return sinkOpened{Error: fmt.Errorf("sink open: %w", err)}
		}).WithTimeout(state.openTimeout).PipeTo(ctx.Self())
	case sinkOpened:
		if msg.Error != nil {
			state.fail(ctx, msg.Error)
			return
		}
		state.logger.Info("meter@starting sink open", zap.Duration("period", state.cadence.Period()))
		state.cadence.Start(state.clock.Now())
		state.behavior.Become(state.RunningReceive)
		ctx.Send(ctx.Self(), emitTick{})
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER,
			Healthy: false,
			State:   "starting",
		})
	case *actor.Restarting, *actor.Stopping, *actor.Stopped:
	default:
		state.logger.Debug("meter@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterActor) RunningReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case emitTick:
		state.emit(ctx)
	case domain.SetPowerRequest:
		state.model.SetPower(msg.Power)
		state.metrics.ObserveSetpoint(msg.Source)
		state.logger.Info("meter@running power setpoint", zap.Float64("power_kw", msg.Power), zap.String("source", msg.Source))
		state.eventStream.Publish(events.PowerSetpointUpdateEvent(msg.Power))
		Reply(ctx, msg, domain.SetPowerResponse{Power: msg.Power})
	case domain.GetReadingRequest:
		Reply(ctx, msg, domain.GetReadingResponse{Reading: state.readingCopy()})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER,
			Healthy: true,
			State:   "running",
		})
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting, *actor.Stopped:
	default:
		state.logger.Debug("meter@running unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) FailedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case emitTick:
	case domain.SetPowerRequest:
		Reply(ctx, msg, domain.SetPowerResponse{
			ActorResponseMixIn: domain.ErrorResponse(ErrMeterFailed),
		})
	case domain.GetReadingRequest:
		Reply(ctx, msg, domain.GetReadingResponse{Reading: state.readingCopy()})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			ActorResponseMixIn: domain.ErrorResponse(state.lastError),
			Id:                 domain.ACTOR_ID_METER,
			Healthy:            false,
			State:              "failed",
		})
	default:
		state.logger.Debug("meter@failed ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) emit(ctx actor.Context) {
	now := state.clock.Now()
	lag := now.Sub(state.cadence.Deadline())

	tariff := state.model.Advance(now)
	voltages := state.model.Voltages()
	currents := state.model.Currents(voltages)
	meterState := state.model.State()

	reading := domain.Reading{
		Timestamp:      now.In(state.model.Location()),
		Tariff:         tariff,
		EnergyT1:       meterState.EnergyT1,
		EnergyT2:       meterState.EnergyT2,
		EnergyReturnT1: meterState.EnergyReturnT1,
		EnergyReturnT2: meterState.EnergyReturnT2,
		Power:          meterState.Power,
		Voltages:       voltages,
		Currents:       currents,
	}
	frame := dsmr.Render(dsmr.Telegram{
		Identification:    state.identification,
		Timestamp:         reading.Timestamp,
		Tariff:            uint8(reading.Tariff),
		EnergyDeliveredT1: reading.EnergyT1,
		EnergyDeliveredT2: reading.EnergyT2,
		EnergyReturnedT1:  reading.EnergyReturnT1,
		EnergyReturnedT2:  reading.EnergyReturnT2,
		Power:             reading.Power,
		Voltages:          reading.Voltages,
		Currents:          reading.Currents,
	})

	if err := state.sink.Write(frame); err != nil {
		state.fail(ctx, fmt.Errorf("sink write: %w", err))
		return
	}
	if err := state.sink.Flush(); err != nil {
		state.fail(ctx, fmt.Errorf("sink flush: %w", err))
		return
	}

	state.lastReading = &reading
	state.metrics.ObserveTelegram(reading, len(frame), lag)
	state.logger.Debug("meter@running sent telegram", zap.Int("bytes", len(frame)),
		zap.Stringer("tariff", tariff), zap.Float64("power_kw", reading.Power))
	state.eventStream.Publish(domain.ReadingUpdatedEvent{Reading: reading, Size: len(frame)})

	delay := state.cadence.Next(state.clock.Now())
	state.cancelTick = state.scheduler.RequestOnce(delay, ctx.Self(), emitTick{})
}

// fail stops emission for good. The parent decides whether the process survives.
func (state *MeterActor) fail(ctx actor.Context, err error) {
	state.logger.Error("meter@running sink failure", zap.Error(err))
	state.metrics.ObserveSinkFailure()
	state.lastError = err
	state.stop()

	failure := domain.EmissionFailedEvent{Error: err}
	state.eventStream.Publish(failure)
	if ctx.Parent() != nil {
		ctx.Send(ctx.Parent(), failure)
	}

	state.behavior.Become(state.FailedReceive)
	state.stash.UnstashAll(ctx)
}

func (state *MeterActor) stop() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	if err := state.sink.Close(); err != nil {
		state.logger.Warn("meter@stop sink close", zap.Error(err))
	}
}

func (state *MeterActor) readingCopy() *domain.Reading {
	if state.lastReading == nil {
		return nil
	}
	reading := *state.lastReading
	return &reading
}
