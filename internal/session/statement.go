package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roach88/strand/internal/dispatch"
	"github.com/roach88/strand/internal/engine"
)

// Statement is a prepared statement owned by one Connection. All execution
// goes through the parent's queue; the Statement itself is just a stable,
// shareable reference to the native sub-handle.
type Statement struct {
	conn *Connection
	sql  string
	raw  engine.Stmt

	disposed atomic.Bool
	// finalized flips on the worker inside the finalize unit. Units
	// scheduled before Dispose run before it and observe false, so they
	// keep their full FIFO turn; only units racing past the schedule-time
	// check observe true.
	finalized   atomic.Bool
	disposeOnce sync.Once
	disposeFut  *dispatch.Future[struct{}]
}

// SQL returns the statement's text. Safe even after disposal; the text is
// immutable metadata, not a native call.
func (s *Statement) SQL() string {
	return s.sql
}

// Connection returns the owning connection.
func (s *Statement) Connection() *Connection {
	return s.conn
}

// Disposed reports whether Dispose has been called on the statement or its
// connection.
func (s *Statement) Disposed() bool {
	return s.disposed.Load() || s.conn.disposed.Load()
}

// UseStatement schedules fn as one unit of work with exclusive access to the
// prepared statement. Same contract as Use: the lease is valid only during
// the run, and a disposed statement or connection fails fast without
// consuming a queue slot.
func UseStatement[T any](s *Statement, ctx context.Context, fn func(l *StatementLease) (T, error)) *dispatch.Future[T] {
	if s.Disposed() {
		return dispatch.FailedFuture[T](dispatch.Disposed("statement"))
	}

	c := s.conn
	fut := dispatch.NewFuture[T]()
	seq := c.clock.Next()

	var val T
	u := dispatch.NewUnit(seq, ctx, func(uctx context.Context) error {
		// A unit that slipped past the schedule-time check but landed
		// after the finalize unit must not touch the closed handle.
		if s.finalized.Load() {
			return dispatch.Disposed("statement")
		}

		l := newStatementLease(uctx, s.raw)
		defer l.poison()

		v, err := fn(l)
		if err != nil {
			return err
		}
		val = v
		return nil
	}, func(err error) {
		fut.Complete(val, err)
	})

	if !c.queue.Enqueue(u) {
		return dispatch.FailedFuture[T](dispatch.Disposed("statement"))
	}

	c.logger.Debug("unit scheduled", "conn", c.id, "seq", seq, "kind", "use_statement")
	return fut
}

// Exec schedules one execution of the statement and returns a future for
// its side-effect summary.
func (s *Statement) Exec(ctx context.Context, args ...any) *dispatch.Future[engine.Result] {
	return UseStatement(s, ctx, func(l *StatementLease) (engine.Result, error) {
		return l.Exec(args...)
	})
}

// QueryStatement builds a lazy stream over the statement's rows. Every
// subscription schedules a fresh unit that re-executes the statement.
func QueryStatement[T any](s *Statement, scan RowMapper[T], args ...any) *Stream[T] {
	c := s.conn
	return &Stream[T]{
		run: func(sctx context.Context, deliver func(T) error) *dispatch.Future[struct{}] {
			if s.Disposed() {
				return dispatch.FailedFuture[struct{}](dispatch.Disposed("statement"))
			}
			return scheduleUnit(c, sctx, "query_statement", func(uctx context.Context) error {
				if s.finalized.Load() {
					return dispatch.Disposed("statement")
				}

				rows, err := s.raw.Query(uctx, args...)
				if err != nil {
					return boundaryErr(err)
				}
				defer rows.Close()

				return pumpRows(rows, scan, deliver)
			})
		},
	}
}

// Dispose finalizes the statement: the flag flips immediately so later
// scheduling fails fast, and the native finalize runs through the parent
// queue as an ordinary unit, after everything already scheduled.
//
// Idempotent: every call returns the same future. Disposing the parent
// connection disposes its statements, so this is only needed to release a
// statement early.
func (s *Statement) Dispose() *dispatch.Future[struct{}] {
	s.disposeOnce.Do(func() {
		s.disposed.Store(true)
		s.disposeFut = scheduleFinalize(s)
	})

	return s.disposeFut
}

func scheduleFinalize(s *Statement) *dispatch.Future[struct{}] {
	c := s.conn
	fut := dispatch.NewFuture[struct{}]()
	seq := c.clock.Next()

	u := dispatch.NewUnit(seq, context.Background(), func(context.Context) error {
		// Removal and the finalized flip happen on the worker, so they are
		// ordered before every later unit and before the connection
		// teardown's registry drain; the handle closes exactly once.
		s.finalized.Store(true)
		c.stmts.remove(s)
		if err := s.raw.Close(); err != nil {
			return boundaryErr(err)
		}
		return nil
	}, func(err error) {
		fut.Complete(struct{}{}, err)
	})

	if !c.queue.Enqueue(u) {
		// Connection disposal won the race; its teardown closes the handle.
		return dispatch.ResolvedFuture(struct{}{})
	}

	c.logger.Debug("unit scheduled", "conn", c.id, "seq", seq, "kind", "finalize")
	return fut
}
