package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/p1sim/internal/config"
	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the bridge and the simulated meter to Home Assistant
// once the MQTT actor is up, then idles.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	stash     *actorutil.Stash
	mqttActor *actor.PID

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// MQTT actor stashes requests until it is connected
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 15*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, state.discoveryRequest(), 5*time.Second), func(err error) any {
			return domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.behavior.Become(state.WaitingPublishReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingPublishReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Info("hadiscovery@publish discovery published")
		state.behavior.Become(state.DoneReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@publish: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DoneReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "done",
		})
	case *actor.Restarting, *actor.Stopping, *actor.Stopped:
	default:
		state.logger.Debug("hadiscovery@done: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) discoveryRequest() domain.PublishDiscoveryRequest {
	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)

	meterDevice := domain.MeterDevice(state.config.Meter.Identification)
	meterDevice.ViaDevice = bridgeDevice.Id

	var sensors []domain.GenericSensor
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)
	sensors = append(sensors, domain.MeterSensors(meterDevice)...)

	return domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		InputNumbers: domain.SetpointInputNumbers(meterDevice, state.config.Meter.InitialPower),
	}
}
