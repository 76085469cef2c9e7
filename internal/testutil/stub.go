package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/strand/internal/engine"
)

// StubEngine is a scripted engine.Engine for tests.
//
// Responses are keyed by SQL text, and every native-boundary call is recorded
// with a sequence number, so tests can assert exact call order across the
// serialization layer without a real database.
//
// Thread-safety: the stub locks internally. The production contract says only
// one goroutine touches a connection at a time, but tests also inspect the
// log from the test goroutine while a worker runs.
type StubEngine struct {
	mu      sync.Mutex
	openErr error
	conns   []*StubConn
}

// NewStubEngine creates a stub with no scripted responses.
func NewStubEngine() *StubEngine {
	return &StubEngine{}
}

// FailOpen makes every subsequent Open return err.
func (e *StubEngine) FailOpen(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr = err
}

// Open returns a fresh stub connection.
func (e *StubEngine) Open(ctx context.Context, dsn string) (engine.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.openErr != nil {
		return nil, e.openErr
	}

	c := &StubConn{dsn: dsn, scripts: map[string]*script{}}
	e.conns = append(e.conns, c)
	return c, nil
}

// Conn returns the most recently opened connection, or nil.
func (e *StubEngine) Conn() *StubConn {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.conns) == 0 {
		return nil
	}
	return e.conns[len(e.conns)-1]
}

// Conns returns every connection opened so far.
func (e *StubEngine) Conns() []*StubConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*StubConn(nil), e.conns...)
}

// Call is one recorded native-boundary call.
type Call struct {
	// Seq is the position of the call in the connection's log, starting at 1.
	Seq int64

	// Op is the boundary method: "prepare", "exec", "query", "step",
	// "reset", "finalize", "rows_close", or "close".
	Op string

	// SQL is the statement text the call touched, empty for "close".
	SQL string
}

func (c Call) String() string {
	if c.SQL == "" {
		return c.Op
	}
	return c.Op + " " + c.SQL
}

// script is the canned response for one SQL string.
type script struct {
	cols   []engine.Column
	rows   [][]any
	result engine.Result
	err    error
}

// StubConn is a scripted engine.Conn.
type StubConn struct {
	mu      sync.Mutex
	dsn     string
	seq     int64
	calls   []Call
	scripts map[string]*script
	hooks   engine.HookSet
	closed  bool
}

// ScriptRows scripts the result set Query returns for sql. Column decltypes
// are left empty; tests that need them use ScriptColumns.
func (c *StubConn) ScriptRows(sql string, cols []string, rows ...[]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	columns := make([]engine.Column, len(cols))
	for i, name := range cols {
		columns[i] = engine.Column{Name: name}
	}
	c.scripts[sql] = &script{cols: columns, rows: rows}
}

// ScriptColumns scripts a result set with full column metadata.
func (c *StubConn) ScriptColumns(sql string, cols []engine.Column, rows ...[]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[sql] = &script{cols: cols, rows: rows}
}

// ScriptResult scripts the side-effect summary Exec returns for sql.
func (c *StubConn) ScriptResult(sql string, res engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[sql] = &script{result: res}
}

// ScriptError makes Exec and Query fail for sql.
func (c *StubConn) ScriptError(sql string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[sql] = &script{err: err}
}

// Calls returns a copy of the recorded call log.
func (c *StubConn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsFor returns the recorded calls matching op, in order.
func (c *StubConn) CallsFor(op string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Call
	for _, call := range c.calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Steps returns how many cursor steps have run for sql.
func (c *StubConn) Steps(sql string) int {
	n := 0
	for _, call := range c.CallsFor("step") {
		if call.SQL == sql {
			n++
		}
	}
	return n
}

// Closed reports whether the connection handle has been released.
func (c *StubConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DSN returns the string the connection was opened with.
func (c *StubConn) DSN() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dsn
}

// FireUpdate invokes the registered update hook, if any.
func (c *StubConn) FireUpdate(op int, db, table string, rowid int64) {
	c.mu.Lock()
	hook := c.hooks.Update
	c.mu.Unlock()

	if hook != nil {
		hook(op, db, table, rowid)
	}
}

// FireCommit invokes the registered commit hook, if any. Returns the hook's
// veto error.
func (c *StubConn) FireCommit() error {
	c.mu.Lock()
	hook := c.hooks.Commit
	c.mu.Unlock()

	if hook != nil {
		return hook()
	}
	return nil
}

// FireRollback invokes the registered rollback hook, if any.
func (c *StubConn) FireRollback() {
	c.mu.Lock()
	hook := c.hooks.Rollback
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Authorize consults the registered authorizer; allow when none is set.
func (c *StubConn) Authorize(action int, arg1, arg2, arg3 string) engine.AuthResult {
	c.mu.Lock()
	hook := c.hooks.Authorize
	c.mu.Unlock()

	if hook != nil {
		return hook(action, arg1, arg2, arg3)
	}
	return engine.AuthAllow
}

func (c *StubConn) record(op, sql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.calls = append(c.calls, Call{Seq: c.seq, Op: op, SQL: sql})
}

func (c *StubConn) lookup(sql string) *script {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scripts[sql]
}

func (c *StubConn) Prepare(ctx context.Context, query string) (engine.Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Closed() {
		return nil, fmt.Errorf("prepare %q: connection closed", query)
	}

	c.record("prepare", query)
	return &StubStmt{conn: c, sql: query}, nil
}

func (c *StubConn) Exec(ctx context.Context, query string, args ...any) (engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return engine.Result{}, err
	}
	if c.Closed() {
		return engine.Result{}, fmt.Errorf("exec %q: connection closed", query)
	}

	c.record("exec", query)

	if s := c.lookup(query); s != nil {
		if s.err != nil {
			return engine.Result{}, s.err
		}
		return s.result, nil
	}
	return engine.Result{}, nil
}

func (c *StubConn) RegisterHooks(h engine.HookSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = h
}

func (c *StubConn) Close() error {
	c.record("close", "")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// StubStmt is a scripted prepared statement.
type StubStmt struct {
	conn   *StubConn
	sql    string
	closed bool
}

func (s *StubStmt) SQL() string {
	return s.sql
}

// NumParams counts positional placeholders in the statement text.
func (s *StubStmt) NumParams() int {
	return strings.Count(s.sql, "?")
}

func (s *StubStmt) Exec(ctx context.Context, args ...any) (engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return engine.Result{}, err
	}
	if s.closed {
		return engine.Result{}, fmt.Errorf("exec %q: statement finalized", s.sql)
	}

	s.conn.record("exec", s.sql)

	if sc := s.conn.lookup(s.sql); sc != nil {
		if sc.err != nil {
			return engine.Result{}, sc.err
		}
		return sc.result, nil
	}
	return engine.Result{}, nil
}

func (s *StubStmt) Query(ctx context.Context, args ...any) (engine.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, fmt.Errorf("query %q: statement finalized", s.sql)
	}

	s.conn.record("query", s.sql)

	sc := s.conn.lookup(s.sql)
	if sc == nil {
		return &StubRows{conn: s.conn, sql: s.sql}, nil
	}
	if sc.err != nil {
		return nil, sc.err
	}
	return &StubRows{conn: s.conn, sql: s.sql, cols: sc.cols, rows: sc.rows}, nil
}

func (s *StubStmt) Reset() error {
	s.conn.record("reset", s.sql)
	return nil
}

func (s *StubStmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.record("finalize", s.sql)
	return nil
}

// StubRows is a scripted cursor. Each Next records one "step" call, matching
// the one-row-per-step shape of the real adapter.
type StubRows struct {
	conn *StubConn
	sql  string
	cols []engine.Column
	rows [][]any
	idx  int
	vals []any
}

func (r *StubRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}

	r.conn.record("step", r.sql)
	r.vals = r.rows[r.idx]
	r.idx++
	return true
}

func (r *StubRows) Values() []any {
	return r.vals
}

func (r *StubRows) Columns() []engine.Column {
	return r.cols
}

func (r *StubRows) Err() error {
	return nil
}

func (r *StubRows) Close() error {
	r.conn.record("rows_close", r.sql)
	return nil
}
