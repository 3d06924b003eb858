package actorutil

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

// BackgroundTask runs a blocking call off the actor goroutine and delivers
// exactly one message: the call's result, or recover's value when the call
// panics or outlives the timeout.
type BackgroundTask[T any] struct {
	ctx     actor.Context
	fn      func() T
	recover func(error) T
	timeout time.Duration
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() T, recover func(error) T) *BackgroundTask[T] {
	return &BackgroundTask[T]{
		ctx:     ctx,
		fn:      fn,
		recover: recover,
	}
}

// WithTimeout bounds the call. Zero means no bound.
func (t *BackgroundTask[T]) WithTimeout(timeout time.Duration) *BackgroundTask[T] {
	t.timeout = timeout
	return t
}

func (t *BackgroundTask[T]) PipeTo(pid *actor.PID) {
	go func() {
		t.ctx.Send(pid, t.result())
	}()
}

func (t *BackgroundTask[T]) result() T {
	task := io.Eval(func() (value T, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("background task panicked: %v", r)
			}
		}()
		return t.fn(), nil
	})
	if t.timeout > 0 {
		task = io.WithTimeout[T](t.timeout)(task)
	}
	task = io.Recover(task, func(err error) io.IO[T] {
		return io.Lift(t.recover(err))
	})
	return io.RunSync(task).Value
}
