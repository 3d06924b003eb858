package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_METER        = "meter"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetReadingRequest struct {
	ActorRequestMixIn
}

type GetReadingResponse struct {
	ActorResponseMixIn
	Reading *Reading
}

// PublishDiscoveryRequest asks the MQTT actor to announce entities to Home Assistant.
type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// Requests may name an explicit reply target, otherwise the sender is answered.
type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func ErrorResponse(err error) ActorResponseMixIn {
	return ActorResponseMixIn{ResponseError: err}
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}
