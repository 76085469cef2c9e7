package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Worker drains one queue in strict FIFO order.
//
// CRITICAL: Run must be called from exactly ONE goroutine per queue. The
// worker is the only execution context that ever touches the connection's
// native handle, which is what makes locking around the handle unnecessary.
//
// A unit that fails (error or panic) reports only to its own completion
// sink; the worker logs it and moves on to the next unit.
type Worker struct {
	queue *Queue
}

// NewWorker creates a worker bound to one queue.
func NewWorker(q *Queue) *Worker {
	return &Worker{queue: q}
}

// Run drains the queue until it is closed and empty, then returns.
//
// The connection's teardown unit closes the queue, so the loop terminates
// after teardown and never before in-flight work has drained.
func (w *Worker) Run() {
	for {
		u, ok := w.queue.TryDequeue()
		if ok {
			w.execute(u)
			continue
		}

		if w.queue.Closed() {
			slog.Debug("worker stopping: queue closed")
			return
		}

		// No unit ready - wait for a signal. The signal channel closes when
		// the queue closes, so this never hangs past teardown.
		<-w.queue.Wait()
	}
}

// execute runs one unit to a terminal state.
//
// Cancel-before-start: the unit's signal is checked before the body is
// invoked; a fired signal short-circuits to Cancelled without running
// anything.
func (w *Worker) execute(u *Unit) {
	if err := u.ctx.Err(); err != nil {
		slog.Debug("unit cancelled before start", "seq", u.seq)
		u.finish(StatePending, StateCancelled, w.stamp(u, Cancelled(err)))
		return
	}

	if !u.begin() {
		// Already terminal; nothing to do.
		return
	}

	err := w.safeRun(u)
	state, terr := classify(err)
	if terr != nil {
		terr = w.stamp(u, terr)
	}

	switch state {
	case StateCancelled:
		slog.Debug("unit cancelled mid-flight", "seq", u.seq)
	case StateFailed:
		slog.Error("unit failed", "seq", u.seq, "error", terr)
	default:
		slog.Debug("unit completed", "seq", u.seq)
	}

	u.finish(StateRunning, state, terr)
}

// safeRun invokes the unit body, converting a panic into a callback failure
// so one misbehaving caller cannot take the worker down.
func (w *Worker) safeRun(u *Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("unit panicked",
				"seq", u.seq,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = CallbackFailure(fmt.Errorf("panic: %v", r))
		}
	}()

	return u.run(u.ctx)
}

// classify maps a body error to the unit's terminal state.
func classify(err error) (State, error) {
	if err == nil {
		return StateCompleted, nil
	}

	var oe *OpError
	if errors.As(err, &oe) {
		if oe.Code == ErrCodeCancelled {
			return StateCancelled, err
		}
		return StateFailed, err
	}

	// Unclassified errors came from caller-supplied logic.
	return StateFailed, CallbackFailure(err)
}

// stamp attaches the unit seq to an OpError for diagnostics.
func (w *Worker) stamp(u *Unit, err error) error {
	var oe *OpError
	if errors.As(err, &oe) && oe.Seq == 0 {
		oe.Seq = u.seq
	}
	return err
}
