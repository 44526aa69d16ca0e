package tgstats

import (
	"context"

	"github.com/jfk9w-go/flu/me3x"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

// queueAction is a deferred action paired with an abort callback
// invoked when the queue is closed before the action completes.
type queueAction struct {
	run   func()
	abort func(error)
}

// sequentialQueue runs deferred actions strictly one at a time in
// submission order. Each started action must eventually signal
// completion, successful or not, to let the next one start.
type sequentialQueue struct {
	depth me3x.Gauge

	mu      syncf.RWMutex
	actions []queueAction
	closed  bool
}

// push appends the action and starts it in the calling goroutine when
// the queue was idle.
func (q *sequentialQueue) push(ctx context.Context, action queueAction) error {
	ctx, cancel := q.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if q.closed {
		cancel()
		return errors.WithStack(ErrClosed)
	}

	q.actions = append(q.actions, action)
	q.depth.Set(float64(len(q.actions)))
	start := len(q.actions) == 1
	cancel()

	if start {
		action.run()
	}

	return nil
}

// complete pops the in-flight action and starts the next queued one.
// Failed actions signal completion the same way successful ones do.
func (q *sequentialQueue) complete() {
	_, cancel := q.mu.Lock(context.Background())

	var next func()
	if !q.closed && len(q.actions) > 0 {
		q.actions = q.actions[1:]
		q.depth.Set(float64(len(q.actions)))
		if len(q.actions) > 0 {
			next = q.actions[0].run
		}
	}
	cancel()

	if next != nil {
		next()
	}
}

// close drops queued actions without running them and aborts each one
// with ErrClosed. The in-flight action is aborted as well since its
// completion may never arrive; a late completion signal is a no-op.
func (q *sequentialQueue) close() {
	_, cancel := q.mu.Lock(context.Background())
	q.closed = true
	dropped := q.actions
	q.actions = nil
	q.depth.Set(0)
	cancel()

	for _, action := range dropped {
		action.abort(errors.WithStack(ErrClosed))
	}
}
