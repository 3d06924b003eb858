package actorutil

import (
	"github.com/berfenger/p1sim/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ReplyTarget is the request's ReplyToRef when set, otherwise the sender.
// It is nil for a plain Send without a reply target.
func ReplyTarget(ctx actor.Context, req domain.ActorRequest) *actor.PID {
	if ref := req.ReplyTo(); ref != nil {
		return (*actor.PID)(ref)
	}
	return ctx.Sender()
}

// Reply answers req. Stashed requests keep their sender, so a reply after
// UnstashAll still reaches the original future.
func Reply(ctx actor.Context, req domain.ActorRequest, resp domain.ActorResponse) {
	if ref := req.ReplyTo(); ref != nil {
		ctx.Send((*actor.PID)(ref), resp)
		return
	}
	if ctx.Sender() != nil {
		ctx.Respond(resp)
	}
}
