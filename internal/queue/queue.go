// Package queue provides the bounded handoff queues between task and
// interrupt context. Blocking operations are for task context only; TrySend
// and TryReceive never block and are safe from the interrupt dispatcher.
package queue

import (
	"context"
	"time"

	"github.com/tphakala/fifostream/internal/errors"
)

// ErrTimeout is returned when a bounded Send or Receive gives up
var ErrTimeout = errors.New(errors.NewStd("queue operation timed out")).
	Component("queue").
	Category(errors.CategoryTimeout).
	Build()

// Queue is a bounded FIFO of references with a fixed capacity
type Queue[T any] struct {
	ch chan T
}

// New creates a queue holding at most capacity items
func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, errors.Newf("queue capacity must be positive, got %d", capacity).
			Component("queue").
			Category(errors.CategoryStreamInit).
			Context("capacity", capacity).
			Build()
	}
	return &Queue[T]{ch: make(chan T, capacity)}, nil
}

// Send enqueues v, waiting up to timeout for space. A timeout <= 0 waits
// until ctx is done.
func (q *Queue[T]) Send(ctx context.Context, v T, timeout time.Duration) error {
	select {
	case q.ch <- v:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case q.ch <- v:
		return nil
	case <-expired:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the oldest item, waiting up to timeout. A timeout <= 0
// waits until ctx is done.
func (q *Queue[T]) Receive(ctx context.Context, timeout time.Duration) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case v := <-q.ch:
		return v, nil
	case <-expired:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TrySend enqueues v if there is room
func (q *Queue[T]) TrySend(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// TryReceive dequeues the oldest item if any
func (q *Queue[T]) TryReceive() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len, IsEmpty and IsFull are snapshots; the answer may be stale by the
// time the caller acts on it.
func (q *Queue[T]) Len() int { return len(q.ch) }

func (q *Queue[T]) Cap() int { return cap(q.ch) }

func (q *Queue[T]) IsEmpty() bool { return len(q.ch) == 0 }

func (q *Queue[T]) IsFull() bool { return len(q.ch) == cap(q.ch) }
