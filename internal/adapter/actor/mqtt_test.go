package actor

import (
	"testing"
	"time"

	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/core/events"
	"github.com/berfenger/p1sim/internal/mqtt"
	"github.com/berfenger/p1sim/internal/util"
	"github.com/berfenger/p1sim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewOfflineMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	result, err = context.RequestFuture(pid, domain.PublishDiscoveryRequest{
		Sensors: domain.MeterSensors(domain.MeterDevice("/SIMULATOR")),
	}, 2*time.Second).Result()
	assert.NoError(t, err)
	assert.IsType(t, domain.PublishDiscoveryResponse{}, result)

	context.Stop(pid)

	as.Shutdown()
}

func TestEvent2MQTTMessage(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	act := NewOfflineMQTTActor(&cfg, nil, zap.NewNop())
	act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	reading := domain.Reading{
		Tariff:   domain.TARIFF_LOW,
		EnergyT1: 9159.772,
		Power:    0.5,
		Voltages: [3]float64{230.44, 229.1, 231.9},
		Currents: [3]float64{0.72, 0.73, 0.72},
	}
	messages := map[string]string{}
	for _, e := range events.ReadingToUpdateEvents(reading, 380) {
		raw := act.event2MQTTMessage(e)
		if assert.NotNil(raw) {
			messages[raw.topic] = raw.message
		}
	}
	assert.Equal("0.500", messages["p1sim/sensor/power_delivered/state"])
	assert.Equal("0.000", messages["p1sim/sensor/power_returned/state"])
	assert.Equal("9159.772", messages["p1sim/sensor/energy_delivered_tariff1/state"])
	assert.Equal("230.4", messages["p1sim/sensor/voltage_l1/state"])
	assert.Equal("0.72", messages["p1sim/sensor/current_l1/state"])
	assert.Equal("low", messages["p1sim/sensor/electricity_tariff/state"])
	assert.Equal("380", messages["p1sim/sensor/telegram_size/state"])

	raw := act.event2MQTTMessage(events.PowerSetpointUpdateEvent(-1.25))
	assert.Equal("p1sim/number/power_setpoint/state", raw.topic)
	assert.Equal("-1.250", raw.message)
	assert.True(raw.retain)

	raw = act.event2MQTTMessage(events.BridgeStateEvent(false))
	assert.Equal("p1sim/bridge/state", raw.topic)
	assert.Equal(mqtt.MQTT_PAYLOAD_OFFLINE, raw.message)

	assert.Nil(act.event2MQTTMessage(domain.ReadingUpdatedEvent{}))
}
