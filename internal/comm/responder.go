package comm

import (
	"context"

	"github.com/dreamware/ozonedb/internal/ozerr"
)

// Responder is a one-shot reply channel threaded through a request
// message, the Go analogue of the source's per-call responder handle.
// The zero value is not usable; construct with NewResponder.
type Responder[T any] struct {
	ch chan T
}

// NewResponder returns a Responder ready to receive exactly one reply.
func NewResponder[T any]() *Responder[T] {
	return &Responder[T]{ch: make(chan T, 1)}
}

// Reply delivers v to the waiting caller. Safe to call at most once;
// a second call is silently dropped rather than blocking or panicking,
// since a bot that replies twice due to a bug should not wedge itself.
func (r *Responder[T]) Reply(v T) {
	select {
	case r.ch <- v:
	default:
	}
}

// Wait blocks for the reply or until ctx is cancelled, modelling the
// host-supplied timeout of §5 ("host-initiated requests carry a
// responder with a timeout; on timeout, the host drops its receiver").
func (r *Responder[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-r.ch:
		return v, nil
	case <-ctx.Done():
		return zero, ozerr.Wrap(ctx.Err(), "waiting for bot reply", ozerr.Channel)
	}
}
