package dispatch

import (
	"context"
	"sync"
)

// Future is the pending-result handle returned by a single-value Use call.
//
// Scheduling returns immediately; the caller may block on Await or select on
// Done. A future resolves exactly once, with either a value or an error.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// ResolvedFuture creates a future already resolved with a value.
func ResolvedFuture[T any](val T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(val, nil)
	return f
}

// FailedFuture creates a future already resolved with an error.
// Used for fast-reject paths (disposed checks) that never reach the queue.
func FailedFuture[T any](err error) *Future[T] {
	f := NewFuture[T]()
	var zero T
	f.Complete(zero, err)
	return f
}

// Complete resolves the future. Later calls are no-ops; the first outcome
// wins and is the only one observers ever see.
func (f *Future[T]) Complete(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx fires.
//
// A ctx expiry here abandons the wait only - the scheduled unit still runs
// to its own terminal state under its own cancellation signal.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, Cancelled(ctx.Err())
	}
}
