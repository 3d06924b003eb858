package actor

import (
	"testing"
	"time"

	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/util"
	"github.com/berfenger/p1sim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHADiscoveryActor(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.MQTT.Enable = true
	cfg.MQTT.HADiscoveryEnable = true

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	requests := make(chan domain.PublishDiscoveryRequest, 1)
	mqttPID := context.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MQTT, Healthy: true})
		case domain.PublishDiscoveryRequest:
			requests <- msg
			ctx.Respond(domain.PublishDiscoveryResponse{})
		}
	}))

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, mqttPID, logger)
	}))

	var req domain.PublishDiscoveryRequest
	select {
	case req = <-requests:
	case <-time.After(3 * time.Second):
		t.Fatal("discovery was not published")
	}

	// bridge state plus every meter sensor
	require.Len(t, req.Sensors, 1+len(domain.MeterSensors(domain.MeterDevice(cfg.Meter.Identification))))
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, req.Sensors[0].Id)
	meterDevice := req.Sensors[1].Device
	assert.Equal(domain.MeterDevice(cfg.Meter.Identification).Id, meterDevice.Id)
	assert.Equal(domain.BridgeDevice(cfg.MQTT.BaseTopic).Id, meterDevice.ViaDevice)

	require.Len(t, req.InputNumbers, 1)
	assert.Equal(domain.INPUT_NUMBER_ID_POWER_SETPOINT, req.InputNumbers[0].Id)
	assert.Equal(cfg.Meter.InitialPower, req.InputNumbers[0].InitialValue)

	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond).Result()
		if err != nil {
			return false
		}
		return res.(domain.ActorHealthResponse).Healthy
	}, 2*time.Second, 50*time.Millisecond)
}
