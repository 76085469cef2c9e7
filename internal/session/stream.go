package session

import (
	"context"
	"iter"

	"github.com/roach88/strand/internal/dispatch"
	"github.com/roach88/strand/internal/engine"
)

// RowMapper converts one raw result row into a T. It runs on the worker
// goroutine, once per row; a mapper error aborts the stream and classifies
// as a callback failure.
type RowMapper[T any] func(cols []engine.Column, vals []any) (T, error)

// Rows is the identity mapper: it copies each row's values. The copy
// matters - the engine reuses its value slice between cursor steps.
func Rows(cols []engine.Column, vals []any) ([]any, error) {
	return append([]any(nil), vals...), nil
}

// Stream is a lazy, re-subscribable multi-value result.
//
// Building a Stream performs no work and touches no queue. Each subscription
// (Each, Iter, Collect) schedules a fresh unit of work that re-executes the
// underlying query from scratch - two subscriptions observe independent,
// possibly different, result sets.
//
// Values are delivered to the subscriber's goroutine one at a time; the
// worker produces the next value only after the previous one is consumed.
// Cancelling the subscription context stops delivery at the next checkpoint:
// a value pulled from the engine but not yet delivered when cancellation is
// observed is dropped, never delivered late.
type Stream[T any] struct {
	run func(ctx context.Context, deliver func(T) error) *dispatch.Future[struct{}]
}

// Each subscribes to the stream, invoking fn for every value on the calling
// goroutine. fn returning false stops the subscription early, which cancels
// the scheduled unit at its next checkpoint.
//
// Each returns the unit's terminal outcome: nil when the result set was
// fully produced, a Cancelled error when ctx fired or fn stopped early, or
// the classified failure. Values delivered before a failure remain valid.
func (s *Stream[T]) Each(ctx context.Context, fn func(v T) bool) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan T)
	fut := s.run(sctx, func(v T) error {
		// Checkpoint: a cancellation observed here drops v.
		if err := sctx.Err(); err != nil {
			return dispatch.Cancelled(err)
		}
		select {
		case ch <- v:
			return nil
		case <-sctx.Done():
			return dispatch.Cancelled(sctx.Err())
		}
	})

	// The channel is unbuffered and every send happens before the unit
	// reaches a terminal state, so a readable future means no value is in
	// flight: the two select arms are mutually exclusive.
	receiving := true
	for receiving {
		select {
		case v := <-ch:
			if !fn(v) {
				cancel()
				receiving = false
			}
		case <-fut.Done():
			receiving = false
		}
	}

	_, err := fut.Await(context.Background())
	return err
}

// Iter subscribes and returns a range-over-func iterator. Iteration yields
// each value with a nil error; a terminal failure is yielded once, last,
// with a zero value. Breaking out of the loop cancels the subscription.
func (s *Stream[T]) Iter(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		stopped := false
		err := s.Each(ctx, func(v T) bool {
			if !yield(v, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect subscribes and gathers every value. On failure it returns the
// values delivered before the failure along with the terminal error.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	err := s.Each(ctx, func(v T) bool {
		out = append(out, v)
		return true
	})
	return out, err
}

// First subscribes, takes the first value, and cancels the rest of the
// subscription. Returns a Disposed or classified error on failure; a stream
// that completes without producing any value returns ok=false.
func (s *Stream[T]) First(ctx context.Context) (T, bool, error) {
	var (
		first T
		ok    bool
	)
	err := s.Each(ctx, func(v T) bool {
		first, ok = v, true
		return false
	})
	if ok {
		// Stopping early surfaces as a cancellation; the caller got what
		// it asked for.
		if dispatch.IsCancelled(err) {
			err = nil
		}
		return first, true, err
	}
	var zero T
	return zero, false, err
}

// pumpRows drives a cursor through scan and deliver. Runs on the worker
// inside a query unit; deliver blocks until the subscriber consumes the
// value or cancellation is observed.
func pumpRows[T any](rows engine.Rows, scan RowMapper[T], deliver func(T) error) error {
	cols := rows.Columns()
	for rows.Next() {
		v, err := scan(cols, rows.Values())
		if err != nil {
			return dispatch.CallbackFailure(err)
		}
		if err := deliver(v); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return boundaryErr(err)
	}
	return nil
}
