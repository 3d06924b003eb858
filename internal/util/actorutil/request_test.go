package actorutil

import (
	"testing"
	"time"

	"github.com/berfenger/p1sim/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReply(t *testing.T) {

	as := actor.NewActorSystem()
	defer as.Shutdown()
	context := as.Root

	meter := context.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(domain.SetPowerRequest); ok {
			Reply(ctx, msg, domain.SetPowerResponse{Power: msg.Power})
		}
	}))

	// sender gets the reply
	res, err := context.RequestFuture(meter, domain.SetPowerRequest{Power: 1.5}, time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, 1.5, res.(domain.SetPowerResponse).Power)

	// explicit reply target wins over the sender
	replies := make(chan domain.SetPowerResponse, 1)
	target := context.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(domain.SetPowerResponse); ok {
			replies <- msg
		}
	}))
	context.Send(meter, domain.SetPowerRequest{
		ActorRequestMixIn: domain.ActorRequestMixIn{ReplyToRef: (*domain.ActorRef)(target)},
		Power:             -2,
	})

	select {
	case msg := <-replies:
		assert.Equal(t, -2.0, msg.Power)
	case <-time.After(2 * time.Second):
		t.Fatal("reply target not answered")
	}
}

func TestReplyTarget(t *testing.T) {

	as := actor.NewActorSystem()
	defer as.Shutdown()
	context := as.Root

	targets := make(chan *actor.PID, 2)
	pid := context.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(domain.GetReadingRequest); ok {
			targets <- ReplyTarget(ctx, msg)
		}
	}))

	context.Send(pid, domain.GetReadingRequest{})
	other := actor.NewPID("local", "other")
	context.Send(pid, domain.GetReadingRequest{
		ActorRequestMixIn: domain.ActorRequestMixIn{ReplyToRef: (*domain.ActorRef)(other)},
	})

	for _, want := range []*actor.PID{nil, other} {
		select {
		case got := <-targets:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("request not received")
		}
	}
}
