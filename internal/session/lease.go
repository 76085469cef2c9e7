package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/roach88/strand/internal/dispatch"
	"github.com/roach88/strand/internal/engine"
)

// Lease is the scoped connection handle a callback receives during its unit
// of work. It is valid only until the unit finishes; the dispatcher poisons
// it on every exit path, so a lease stashed by the callback fails all later
// calls with a Disposed error instead of touching the native handle out of
// turn.
type Lease struct {
	ctx   context.Context
	conn  engine.Conn
	valid atomic.Bool
}

func newLease(ctx context.Context, conn engine.Conn) *Lease {
	l := &Lease{ctx: ctx, conn: conn}
	l.valid.Store(true)
	return l
}

// poison revokes the lease. Called by the dispatcher when the unit of work
// finishes, whatever the outcome.
func (l *Lease) poison() {
	l.valid.Store(false)
}

// Valid reports whether the lease is still inside its unit of work.
func (l *Lease) Valid() bool {
	return l.valid.Load()
}

// Exec runs a one-shot statement on the leased connection.
func (l *Lease) Exec(sql string, args ...any) (engine.Result, error) {
	if !l.valid.Load() {
		return engine.Result{}, dispatch.Disposed("lease")
	}

	res, err := l.conn.Exec(l.ctx, sql, args...)
	if err != nil {
		return engine.Result{}, boundaryErr(err)
	}
	return res, nil
}

// StatementLease is the scoped prepared-statement handle a callback receives
// during a statement unit of work. Same poisoning contract as Lease.
type StatementLease struct {
	ctx   context.Context
	stmt  engine.Stmt
	valid atomic.Bool
}

func newStatementLease(ctx context.Context, stmt engine.Stmt) *StatementLease {
	l := &StatementLease{ctx: ctx, stmt: stmt}
	l.valid.Store(true)
	return l
}

func (l *StatementLease) poison() {
	l.valid.Store(false)
}

// Valid reports whether the lease is still inside its unit of work.
func (l *StatementLease) Valid() bool {
	return l.valid.Load()
}

// SQL returns the prepared statement's text.
func (l *StatementLease) SQL() (string, error) {
	if !l.valid.Load() {
		return "", dispatch.Disposed("lease")
	}
	return l.stmt.SQL(), nil
}

// NumParams returns the statement's bind parameter count.
func (l *StatementLease) NumParams() (int, error) {
	if !l.valid.Load() {
		return 0, dispatch.Disposed("lease")
	}
	return l.stmt.NumParams(), nil
}

// Exec binds args and runs the statement to completion.
func (l *StatementLease) Exec(args ...any) (engine.Result, error) {
	if !l.valid.Load() {
		return engine.Result{}, dispatch.Disposed("lease")
	}

	res, err := l.stmt.Exec(l.ctx, args...)
	if err != nil {
		return engine.Result{}, boundaryErr(err)
	}
	return res, nil
}

// boundaryErr classifies an error crossing back from the native boundary.
// Already-classified errors pass through; context expiry observed at an
// entry checkpoint counts as cancellation; everything else the engine
// reports is an engine failure.
func boundaryErr(err error) error {
	var oe *dispatch.OpError
	if errors.As(err, &oe) {
		return oe
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dispatch.Cancelled(err)
	}
	return dispatch.EngineFailure(err)
}
