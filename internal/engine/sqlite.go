package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLite is the production Engine: driver-level mattn/go-sqlite3.
//
// The adapter deliberately bypasses database/sql. The pool there hands out
// interchangeable connections, which is exactly wrong for this system: the
// whole design depends on one stateful native handle owned by one worker.
// Driver-level access gives prepare/bind/step/reset on the raw handle and
// native hook registration.
type SQLite struct {
	driver *sqlite3.SQLiteDriver
}

// NewSQLite creates the SQLite engine.
func NewSQLite() *SQLite {
	return &SQLite{driver: &sqlite3.SQLiteDriver{}}
}

// Open establishes a native connection. The dsn uses mattn's connection
// string format (file path plus _busy_timeout/_journal_mode/... parameters);
// see config.Config.DSN.
func (e *SQLite) Open(ctx context.Context, dsn string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dc, err := e.driver.Open(dsn)
	if err != nil {
		return nil, wrapSQLiteErr(fmt.Errorf("open %q: %w", dsn, err))
	}

	raw, ok := dc.(*sqlite3.SQLiteConn)
	if !ok {
		dc.Close()
		return nil, fmt.Errorf("unexpected driver connection type %T", dc)
	}

	return &sqliteConn{raw: raw}, nil
}

// sqliteConn adapts *sqlite3.SQLiteConn to the Conn boundary.
type sqliteConn struct {
	raw *sqlite3.SQLiteConn
}

func (c *sqliteConn) Prepare(ctx context.Context, query string) (Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds, err := c.raw.Prepare(query)
	if err != nil {
		return nil, wrapSQLiteErr(fmt.Errorf("prepare %q: %w", query, err))
	}

	return &sqliteStmt{raw: ds, sql: query}, nil
}

func (c *sqliteConn) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	values, err := driverValues(args)
	if err != nil {
		return Result{}, err
	}

	res, err := c.raw.Exec(query, values)
	if err != nil {
		return Result{}, wrapSQLiteErr(fmt.Errorf("exec %q: %w", query, err))
	}

	return driverResult(res), nil
}

func (c *sqliteConn) RegisterHooks(h HookSet) {
	if h.Update != nil {
		c.raw.RegisterUpdateHook(h.Update)
	}
	if h.Commit != nil {
		commit := h.Commit
		c.raw.RegisterCommitHook(func() int {
			if err := commit(); err != nil {
				return 1 // non-zero converts the commit into a rollback
			}
			return 0
		})
	}
	if h.Rollback != nil {
		c.raw.RegisterRollbackHook(h.Rollback)
	}
	if h.Authorize != nil {
		authorize := h.Authorize
		c.raw.RegisterAuthorizer(func(action int, arg1, arg2, arg3 string) int {
			return int(authorize(action, arg1, arg2, arg3))
		})
	}
}

func (c *sqliteConn) Close() error {
	if err := c.raw.Close(); err != nil {
		return wrapSQLiteErr(fmt.Errorf("close connection: %w", err))
	}
	return nil
}

// sqliteStmt adapts a driver statement. It tracks its open cursor so Reset
// and re-Query can finish it first; the native statement supports only one
// active cursor.
type sqliteStmt struct {
	raw  driver.Stmt
	sql  string
	open *sqliteRows
}

func (s *sqliteStmt) SQL() string {
	return s.sql
}

func (s *sqliteStmt) NumParams() int {
	return s.raw.NumInput()
}

func (s *sqliteStmt) Exec(ctx context.Context, args ...any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := s.Reset(); err != nil {
		return Result{}, err
	}

	values, err := driverValues(args)
	if err != nil {
		return Result{}, err
	}

	res, err := s.raw.Exec(values)
	if err != nil {
		return Result{}, wrapSQLiteErr(fmt.Errorf("exec %q: %w", s.sql, err))
	}

	return driverResult(res), nil
}

func (s *sqliteStmt) Query(ctx context.Context, args ...any) (Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.Reset(); err != nil {
		return nil, err
	}

	values, err := driverValues(args)
	if err != nil {
		return nil, err
	}

	dr, err := s.raw.Query(values)
	if err != nil {
		return nil, wrapSQLiteErr(fmt.Errorf("query %q: %w", s.sql, err))
	}

	rows := &sqliteRows{raw: dr, stmt: s}
	s.open = rows
	return rows, nil
}

func (s *sqliteStmt) Reset() error {
	if s.open == nil {
		return nil
	}
	rows := s.open
	s.open = nil
	if err := rows.raw.Close(); err != nil {
		return wrapSQLiteErr(fmt.Errorf("reset %q: %w", s.sql, err))
	}
	return nil
}

func (s *sqliteStmt) Close() error {
	if err := s.Reset(); err != nil {
		return err
	}
	if err := s.raw.Close(); err != nil {
		return wrapSQLiteErr(fmt.Errorf("finalize %q: %w", s.sql, err))
	}
	return nil
}

// sqliteRows adapts the driver cursor. Each Next steps the native statement
// by exactly one row.
type sqliteRows struct {
	raw  driver.Rows
	stmt *sqliteStmt
	cols []Column
	dest []driver.Value
	vals []any
	err  error
	done bool
}

func (r *sqliteRows) Next() bool {
	if r.done || r.err != nil {
		return false
	}

	names := r.raw.Columns()
	if r.dest == nil {
		r.dest = make([]driver.Value, len(names))
		r.vals = make([]any, len(names))
	}

	err := r.raw.Next(r.dest)
	if errors.Is(err, io.EOF) {
		r.done = true
		return false
	}
	if err != nil {
		r.err = wrapSQLiteErr(fmt.Errorf("step: %w", err))
		return false
	}

	for i, v := range r.dest {
		r.vals[i] = v
	}
	return true
}

func (r *sqliteRows) Values() []any {
	return r.vals
}

func (r *sqliteRows) Columns() []Column {
	if r.cols == nil {
		names := r.raw.Columns()
		r.cols = make([]Column, len(names))

		var decls []string
		if dt, ok := r.raw.(interface{ DeclTypes() []string }); ok {
			decls = dt.DeclTypes()
		}

		for i, name := range names {
			col := Column{Name: name}
			if i < len(decls) {
				col.DeclType = decls[i]
			}
			r.cols[i] = col
		}
	}
	return r.cols
}

func (r *sqliteRows) Err() error {
	return r.err
}

func (r *sqliteRows) Close() error {
	if r.stmt != nil && r.stmt.open == r {
		r.stmt.open = nil
	}
	if err := r.raw.Close(); err != nil {
		return wrapSQLiteErr(fmt.Errorf("close rows: %w", err))
	}
	return nil
}

// driverValues normalizes positional arguments into driver values. Only the
// types the native engine can bind are accepted.
func driverValues(args []any) ([]driver.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}

	values := make([]driver.Value, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
			values[i] = nil
		case int64:
			values[i] = v
		case int:
			values[i] = int64(v)
		case int32:
			values[i] = int64(v)
		case int16:
			values[i] = int64(v)
		case int8:
			values[i] = int64(v)
		case uint:
			if uint64(v) > math.MaxInt64 {
				return nil, fmt.Errorf("arg %d: uint value %d overflows int64", i+1, v)
			}
			values[i] = int64(v)
		case uint64:
			if v > math.MaxInt64 {
				return nil, fmt.Errorf("arg %d: uint64 value %d overflows int64", i+1, v)
			}
			values[i] = int64(v)
		case uint32:
			values[i] = int64(v)
		case float64:
			values[i] = v
		case float32:
			values[i] = float64(v)
		case bool:
			values[i] = v
		case string:
			values[i] = v
		case []byte:
			values[i] = v
		case time.Time:
			values[i] = v
		default:
			return nil, fmt.Errorf("arg %d: unsupported bind type %T", i+1, arg)
		}
	}
	return values, nil
}

// driverResult extracts the side-effect summary from a driver result.
func driverResult(res driver.Result) Result {
	out := Result{}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	return out
}

// wrapSQLiteErr converts a wrapped sqlite3.Error into the boundary's
// structured Error, keeping the native code and message verbatim.
func wrapSQLiteErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return &Error{
			Code:     int(se.Code),
			Extended: int(se.ExtendedCode),
			Message:  se.Error(),
		}
	}
	return err
}
