package actor

import (
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/p1sim/internal/adapter/actor"
	"github.com/berfenger/p1sim/internal/config"
	"github.com/berfenger/p1sim/internal/core/domain"
	. "github.com/berfenger/p1sim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MeterActorProvider func(*eventstream.EventStream) *MeterActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type ModbusActorProvider func(*eventstream.EventStream) *adactor.ModbusActor

// MasterOfPuppetsActor supervises the meter and its optional outlets, aggregates
// their health and routes setpoint commands to the meter.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	meterActor          *actor.PID
	mqttActor           *actor.PID
	modbusActor         *actor.PID
	meterActorProvider  MeterActorProvider
	mqttActorProvider   MQTTActorProvider
	modbusActorProvider ModbusActorProvider
	onFatal             func(error)
	stopping            bool
	logger              *zap.Logger
}

type healthCheckResult struct {
	expected       map[string]bool
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

// NewMasterOfPuppetsActor builds the root actor. Nil MQTT or Modbus providers disable those outlets.
// onFatal is invoked once the meter can no longer emit telegrams.
func NewMasterOfPuppetsActor(config config.Config, meterActorProvider MeterActorProvider, mqttActorProvider MQTTActorProvider,
	modbusActorProvider ModbusActorProvider, onFatal func(error), logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		meterActorProvider:  meterActorProvider,
		mqttActorProvider:   mqttActorProvider,
		modbusActorProvider: modbusActorProvider,
		onFatal:             onFatal,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start Meter child
		meterActorPID, err := state.startMeterActor(ctx)
		if err != nil {
			panic(err)
		}
		state.meterActor = meterActorPID

		// start MQTT child
		if state.config.MQTT.Enable && state.mqttActorProvider != nil {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID

			// start HA Discovery
			if state.config.MQTT.HADiscoveryEnable {
				_, err := state.startHADiscoveryActor(ctx)
				if err != nil {
					panic(err)
				}
			}
		}

		// start Modbus child
		if state.config.Modbus.Enable && state.modbusActorProvider != nil {
			modbusActorPID, err := state.startModbusActor(ctx)
			if err != nil {
				panic(err)
			}
			state.modbusActor = modbusActorPID
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.children())
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.children() {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to the meter
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Any("command", msg.Command), zap.Error(err))
				return
			}
			switch pcmd := cmd.(type) {
			case domain.SetPowerRequest:
				ctx.Send(state.meterActor, pcmd)
			}
		}
	case domain.SetPowerRequest:
		ctx.Forward(state.meterActor)
	case domain.GetReadingRequest:
		ctx.Forward(state.meterActor)
	case domain.SetPowerResponse:
		if msg.HasResponseError() {
			state.logger.Warn("master@default setpoint rejected", zap.Error(msg.GetResponseError()))
		}
	case domain.EmissionFailedEvent:
		state.logger.Error("master@default meter failed", zap.Error(msg.Error))
		state.fatal(msg.Error)
	case *actor.Stopping:
		state.stopping = true
	case *actor.Terminated:
		// children terminate on an orderly stop too
		if !state.stopping && state.meterActor != nil && msg.Who.Id == state.meterActor.Id {
			state.logger.Error("master@default meter terminated")
			state.fatal(fmt.Errorf("%s terminated", domain.ACTOR_ID_METER))
		}
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.record(msg)
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	case *actor.Stopping:
		state.stopping = true
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	children := map[string]*actor.PID{
		domain.ACTOR_ID_METER: state.meterActor,
	}
	if state.mqttActor != nil {
		children[domain.ACTOR_ID_MQTT] = state.mqttActor
	}
	if state.modbusActor != nil {
		children[domain.ACTOR_ID_MODBUS] = state.modbusActor
	}
	return children
}

func (state *MasterOfPuppetsActor) fatal(err error) {
	if state.onFatal != nil {
		state.onFatal(err)
		state.onFatal = nil
	}
}

func (state *MasterOfPuppetsActor) startMeterActor(ctx actor.Context) (*actor.PID, error) {

	// a failed sink is not retried, the meter reports it and stays down
	supervisor := actor.NewOneForOneStrategy(0, 10*time.Second, func(reason interface{}) actor.Directive {
		log.Printf("meter failure. reason: %v", reason)
		return actor.StopDirective
	})

	meterProps := actor.PropsFromProducer(func() actor.Actor {
		return state.meterActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	meterActorPID, err := ctx.SpawnNamed(meterProps, domain.ACTOR_ID_METER)
	if err != nil {
		return nil, err
	}

	return meterActorPID, nil
}

func (state *MasterOfPuppetsActor) startModbusActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.modbusActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	modbusActorPID, err := ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS)
	if err != nil {
		return nil, err
	}

	return modbusActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(5, 1*time.Minute, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *healthCheckResult) reset(children map[string]*actor.PID) {
	state.expected = map[string]bool{}
	for id := range children {
		state.expected[id] = true
	}
	state.healthy = map[string]bool{}
	state.checksReceived = 0
}

func (state *healthCheckResult) record(msg domain.ActorHealthResponse) {
	if !state.expected[msg.Id] {
		return
	}
	state.checksReceived++
	if msg.Healthy {
		state.healthy[msg.Id] = true
	}
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == len(state.expected)
}

func (state *healthCheckResult) allHealthy() bool {
	for id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
