package engine

import (
	"context"
	"errors"
	"fmt"
)

// Engine opens native connections. Implemented by SQLite (production) and
// testutil.StubEngine (tests).
type Engine interface {
	// Open establishes a connection to the database identified by dsn.
	Open(ctx context.Context, dsn string) (Conn, error)
}

// Conn is one native connection handle.
//
// Not safe for concurrent use. All access must be serialized by the owner;
// in this system that owner is a session.Connection and its single worker.
type Conn interface {
	// Prepare compiles a statement against this connection. The returned
	// Stmt is a sub-handle of this connection and shares its thread-safety
	// contract.
	Prepare(ctx context.Context, query string) (Stmt, error)

	// Exec runs a one-shot statement with positional arguments.
	Exec(ctx context.Context, query string, args ...any) (Result, error)

	// RegisterHooks installs the opaque callback slots the native engine
	// reports events through. Hooks fire synchronously on the goroutine
	// executing the triggering native call.
	RegisterHooks(h HookSet)

	// Close releases the native handle. The connection and every statement
	// prepared on it are unusable afterwards.
	Close() error
}

// Stmt is one prepared-statement sub-handle.
type Stmt interface {
	// SQL returns the statement text.
	SQL() string

	// NumParams returns the number of bind parameters.
	NumParams() int

	// Exec binds args and runs the statement to completion.
	Exec(ctx context.Context, args ...any) (Result, error)

	// Query binds args and returns a cursor over the result rows. At most
	// one cursor per statement may be open at a time; Reset or Rows.Close
	// finishes the previous one.
	Query(ctx context.Context, args ...any) (Rows, error)

	// Reset finishes any open cursor and returns the statement to its
	// ready state.
	Reset() error

	// Close finalizes the statement.
	Close() error
}

// Rows is a lazy cursor over a statement's result set. Each Next advances
// the native cursor by exactly one row.
type Rows interface {
	// Next advances to the next row. Returns false at end of results or on
	// error; check Err afterwards.
	Next() bool

	// Values returns the current row's column values, typed as the engine
	// decoded them (int64, float64, []byte for TEXT and BLOB, time.Time
	// for declared date columns, nil). The slice is reused between calls
	// to Next.
	Values() []any

	// Columns returns the result column metadata.
	Columns() []Column

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close finishes the cursor and resets the owning statement.
	Close() error
}

// Result reports the side effects of a completed statement.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Column describes one result column.
type Column struct {
	Name     string
	DeclType string
}

// HookSet holds the event callback slots a connection forwards into the
// native engine. Nil slots are not registered.
type HookSet struct {
	// Update fires after every row insert/update/delete.
	Update func(op int, db, table string, rowid int64)

	// Commit fires before a transaction commits; a non-nil error converts
	// the commit into a rollback.
	Commit func() error

	// Rollback fires after a transaction rolls back.
	Rollback func()

	// Authorize is consulted during statement compilation.
	Authorize func(action int, arg1, arg2, arg3 string) AuthResult
}

// AuthResult is an authorizer verdict. The values match the native engine's
// SQLITE_OK / SQLITE_DENY / SQLITE_IGNORE convention.
type AuthResult int

const (
	AuthAllow  AuthResult = 0
	AuthDeny   AuthResult = 1
	AuthIgnore AuthResult = 2
)

// Error is a structured native engine error: primary and extended result
// code plus the engine's message, surfaced verbatim.
type Error struct {
	Code     int
	Extended int
	Message  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("engine error [%d]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("engine error: %s", e.Message)
}

// IsEngineError reports whether err is (or wraps) a native engine error.
func IsEngineError(err error) bool {
	var ee *Error
	return errors.As(err, &ee)
}
