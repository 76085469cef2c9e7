package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
)

// State is the lifecycle position of one unit of work.
type State int32

const (
	// StatePending means the unit is enqueued but has not started.
	StatePending State = iota
	// StateRunning means the unit's body is executing on the worker.
	StateRunning
	// StateCompleted means the body returned normally.
	StateCompleted
	// StateFailed means the body returned an error or panicked.
	StateFailed
	// StateCancelled means cancellation was observed at a checkpoint.
	StateCancelled
)

// String returns the lowercase name of the state, for logs and traces.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Unit is one schedulable unit of work: a body closure, a cancellation
// signal, and a completion sink.
//
// A unit is created at Use call time, enqueued, executed exactly once by the
// worker (or short-circuited to Cancelled if its signal fired before
// execution began), then discarded. The sink is notified exactly once, on
// the transition into a terminal state.
type Unit struct {
	seq      int64
	ctx      context.Context
	run      func(ctx context.Context) error
	complete func(err error)
	state    atomic.Int32
}

// NewUnit creates a pending unit of work.
//
// run is the body executed on the worker; it must return nil on success, an
// *OpError for classified outcomes, or any other error (treated as a
// callback failure). complete is the completion sink; it is invoked exactly
// once with the terminal error (nil for Completed). ctx is the cooperative
// cancellation signal; nil means context.Background().
func NewUnit(seq int64, ctx context.Context, run func(ctx context.Context) error, complete func(err error)) *Unit {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Unit{
		seq:      seq,
		ctx:      ctx,
		run:      run,
		complete: complete,
	}
}

// Seq returns the unit's logical clock stamp.
func (u *Unit) Seq() int64 {
	return u.seq
}

// State returns the unit's current lifecycle state.
func (u *Unit) State() State {
	return State(u.state.Load())
}

// finish moves the unit into a terminal state and notifies the sink.
// The CAS guarantees exactly-once delivery even if finish races with itself.
func (u *Unit) finish(from, to State, err error) {
	if !u.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	if u.complete != nil {
		u.complete(err)
	}
}

// begin moves Pending -> Running. Returns false if the unit is no longer
// pending (already short-circuited).
func (u *Unit) begin() bool {
	return u.state.CompareAndSwap(int32(StatePending), int32(StateRunning))
}
