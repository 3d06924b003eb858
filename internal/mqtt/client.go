package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/p1sim/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"

	// setpoints arrive on <base>/number/<id>/set
	numberComponent = "number"
	commandLeaf     = "set"
	stateLeaf       = "state"
)

var ErrTokenTimeout = errors.New("timed out")

// OptsFromConfig connects to the configured broker and leaves an offline
// bridge state behind if the simulator disappears.
func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(clientID(rand.IntN(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetWill(bridgeStateTopic(cfg.MQTT.BaseTopic), MQTT_PAYLOAD_OFFLINE, 0, true)
	return opts
}

func clientID(suffix int) string {
	return fmt.Sprintf("p1sim_%03d", suffix)
}

// MQTTClient wraps paho with the simulator's topic layout. Every blocking
// operation reports through a continuation on its own goroutine.
type MQTTClient struct {
	client        mqtt.Client
	cfg           config.MQTTConfig
	setpointTopic *regexp.Regexp
}

type ParsedMQTTCommand struct {
	DeviceId string
	Command  string
	Payload  string
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:        mqtt.NewClient(opts),
		cfg:           cfg.MQTT,
		setpointTopic: inputNumberCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

func (c *MQTTClient) topic(component, id, leaf string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.cfg.BaseTopic, component, id, leaf)
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.cfg.BaseTopic)
}

func (c *MQTTClient) SensorStateTopic(sensorId string) string {
	return c.topic("sensor", sensorId, stateLeaf)
}

func (c *MQTTClient) BinarySensorStateTopic(sensorId string) string {
	return c.topic("binary_sensor", sensorId, stateLeaf)
}

func (c *MQTTClient) InputNumberStateTopic(id string) string {
	return c.topic(numberComponent, id, stateLeaf)
}

func (c *MQTTClient) InputNumberCommandTopic(id string) string {
	return c.topic(numberComponent, id, commandLeaf)
}

func (c *MQTTClient) commandTopic() string {
	return c.topic(numberComponent, "+", commandLeaf)
}

func (c *MQTTClient) DiscoveryTopic() string {
	return c.cfg.HADiscoveryTopic
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	return parseInputNumberCommand(c.setpointTopic, msg.Topic(), msg.Payload())
}

// parseInputNumberCommand accepts only numeric payloads on a number command topic.
func parseInputNumberCommand(extractor *regexp.Regexp, topic string, payload []byte) (*ParsedMQTTCommand, error) {
	matches := extractor.FindStringSubmatch(topic)
	if matches == nil {
		return nil, fmt.Errorf("not a setpoint topic: %s", topic)
	}
	text := strings.TrimSpace(string(payload))
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return nil, fmt.Errorf("setpoint payload on %s: %w", topic, err)
	}
	return &ParsedMQTTCommand{
		DeviceId: matches[1],
		Command:  numberComponent,
		Payload:  text,
	}, nil
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	awaitToken("connect", c.client.Connect(), timeout, continuation)
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	awaitToken("publish "+topic, c.client.Publish(topic, qos, retain, payload), timeout, continuation)
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	topic := c.commandTopic()
	awaitToken("subscribe "+topic, c.client.Subscribe(topic, 1, handler), timeout, continuation)
}

func awaitToken(op string, token mqtt.Token, timeout time.Duration, continuation func(error)) {
	go func() {
		if !token.WaitTimeout(timeout) {
			continuation(fmt.Errorf("MQTT %s: %w", op, ErrTokenTimeout))
			return
		}
		if err := token.Error(); err != nil {
			continuation(fmt.Errorf("MQTT %s: %w", op, err))
			return
		}
		continuation(nil)
	}()
}

func inputNumberCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/%s/([a-zA-Z0-9_]+)/%s$", regexp.QuoteMeta(baseTopic), numberComponent, commandLeaf))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
