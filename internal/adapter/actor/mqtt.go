package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/p1sim/internal/config"
	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/core/events"
	"github.com/berfenger/p1sim/internal/mqtt"
	"github.com/berfenger/p1sim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	mqttConnectTimeout   = 10 * time.Second
	mqttSubscribeTimeout = 1 * time.Second
	mqttPublishTimeout   = 5 * time.Second
	mqttBridgeTimeout    = 500 * time.Millisecond
)

// MQTTActor mirrors meter readings to MQTT, keeps the bridge availability topic
// current and hands number commands to its parent.
type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger
}

type mqttConnected struct{}

type mqttSubscribed struct{}

type mqttConnectionLost struct {
	Error error
}

// ParsedCommand is a valid command received on a number command topic.
type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type onEventStreamMessage struct {
	message any
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := newMQTTActor(config, eventStream, logger)
	act.behavior.Become(act.StartingReceive)
	return act
}

// NewOfflineMQTTActor answers like a connected MQTT actor without a broker.
func NewOfflineMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := newMQTTActor(config, eventStream, logger)
	act.behavior.Become(act.OfflineReceive)
	return act
}

func newMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	return &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), mqttConnectionLost{Error: err})
		})
		state.client.Connect(state.continueWith(ctx, mqttConnected{}), mqttConnectTimeout)
	case mqttConnected:
		state.logger.Debug("mqtt@starting connected")
		state.publishBridgeState(true)
		state.subscribeEventStream(ctx)
		state.client.SubscribeToCommandTopic(func(_ pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err != nil {
				state.logger.Warn("mqtt@default invalid command", zap.String("topic", m.Topic()), zap.Error(err))
				return
			}
			ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
		}, state.continueWith(ctx, mqttSubscribed{}), mqttSubscribeTimeout)
	case mqttSubscribed:
		state.logger.Info("mqtt@starting ready", zap.String("base_topic", state.config.MQTT.BaseTopic))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case mqttConnectionLost:
		// let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case onEventStreamMessage:
		// readings are periodic, drop them until subscribed
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "connected",
		})
	case ParsedCommand:
		state.logger.Debug("mqtt@default command", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case onEventStreamMessage:
		state.onEvent(msg.message)
	case domain.PublishDiscoveryRequest:
		err := state.publishDiscovery(msg)
		if err != nil {
			state.logger.Error("mqtt@default discovery", zap.Error(err))
		}
		actorutil.Reply(ctx, msg, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		})
	case mqttConnectionLost:
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) OfflineReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "offline",
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishDiscoveryRequest:
		_, err := mqtt.DiscoveryMessages(state.client, msg.Sensors, msg.InputNumbers)
		actorutil.Reply(ctx, msg, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		})
	}
}

// continueWith maps a client continuation to ok, or to a lost connection.
func (state *MQTTActor) continueWith(ctx actor.Context, ok any) func(error) {
	return func(err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mqttConnectionLost{Error: err})
			return
		}
		ctx.Send(ctx.Self(), ok)
	}
}

func (state *MQTTActor) subscribeEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		ctx.Send(ctx.Self(), onEventStreamMessage{
			message: value,
		})
	})
}

// onEvent publishes without waiting for acknowledgements, so a slow broker
// cannot back up the mailbox.
func (state *MQTTActor) onEvent(event any) {
	switch msg := event.(type) {
	case domain.ReadingUpdatedEvent:
		if !state.config.MQTT.PublishState {
			return
		}
		for _, e := range events.ReadingToUpdateEvents(msg.Reading, msg.Size) {
			state.publish(state.event2MQTTMessage(e), 0, mqttPublishTimeout)
		}
	case domain.InputNumberSensorUpdateEvent:
		state.publish(state.event2MQTTMessage(msg), 1, mqttPublishTimeout)
	}
}

func (state *MQTTActor) publishDiscovery(req domain.PublishDiscoveryRequest) error {
	messages, err := mqtt.DiscoveryMessages(state.client, req.Sensors, req.InputNumbers)
	if err != nil {
		return err
	}
	for _, m := range messages {
		state.client.Publish(m.Topic, m.Payload, 0, true, state.logPublishError, mqttPublishTimeout)
	}
	state.logger.Debug("mqtt@default discovery published", zap.Int("entities", len(messages)))
	return nil
}

func (state *MQTTActor) publishBridgeState(online bool) {
	state.publish(state.event2MQTTMessage(events.BridgeStateEvent(online)), 0, mqttBridgeTimeout)
}

func (state *MQTTActor) publish(raw *rawMessage, qos byte, timeout time.Duration) {
	if raw == nil {
		return
	}
	state.client.Publish(raw.topic, raw.message, qos, raw.retain, state.logPublishError, timeout)
}

func (state *MQTTActor) logPublishError(err error) {
	if err != nil {
		state.logger.Warn("mqtt@publish could not publish a message", zap.Error(err))
	}
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: formatDecimal(msg.Value, msg.Decimals),
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
		}
	case domain.InputNumberSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.InputNumberStateTopic(msg.Id),
			message: formatDecimal(msg.Value, msg.Decimals),
			retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		payload := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Online {
			payload = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: payload,
			retain:  true,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.logger.Debug("mqtt: disconnect")
		state.publishBridgeState(false)
		state.client.Disconnect(mqttBridgeTimeout)
		state.client = nil
	}
}

func formatDecimal(value float64, decimals uint) string {
	return fmt.Sprintf("%.*f", int(decimals), value)
}
