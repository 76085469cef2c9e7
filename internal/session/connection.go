package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/strand/internal/config"
	"github.com/roach88/strand/internal/dispatch"
	"github.com/roach88/strand/internal/engine"
)

// IDGenerator generates connection ids for log correlation.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDGenerator.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDs, so connection ids sort by
// creation time in logs.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source does; fall back to v4.
		return uuid.NewString()
	}
	return id.String()
}

// Option configures a Connection at Open time.
type Option func(*options)

type options struct {
	idGen  IDGenerator
	logger *slog.Logger
}

// WithIDGenerator overrides the connection id source. Tests use fixed
// generators for deterministic log and trace output.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.idGen = g }
}

// WithLogger overrides the connection's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Connection owns one native handle and serializes all access to it.
//
// Thread-safety model:
//   - Use/Exec/Prepare/Query: safe from any goroutine; they only enqueue
//   - the native handle is touched exclusively by the worker goroutine
//   - Dispose: safe from any goroutine, idempotent
type Connection struct {
	id     string
	cfg    config.Config
	conn   engine.Conn
	queue  *dispatch.Queue
	clock  *dispatch.Clock
	hooks  *Hooks
	logger *slog.Logger
	stmts  *registry

	disposed    atomic.Bool
	disposeOnce sync.Once
	disposeFut  *dispatch.Future[struct{}]
	workerDone  chan struct{}
}

// Open establishes a connection and starts its worker.
//
// The native handle is opened on the caller's goroutine - it is not shared
// until the worker starts, so the exclusive-access contract holds.
func Open(ctx context.Context, eng engine.Engine, cfg config.Config, opts ...Option) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{idGen: UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := eng.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	c := &Connection{
		id:         o.idGen.Generate(),
		cfg:        cfg,
		conn:       conn,
		queue:      dispatch.NewQueue(),
		clock:      dispatch.NewClock(),
		hooks:      NewHooks(),
		logger:     o.logger,
		stmts:      newRegistry(),
		workerDone: make(chan struct{}),
	}
	conn.RegisterHooks(c.hooks.engineSet())

	go func() {
		dispatch.NewWorker(c.queue).Run()
		close(c.workerDone)
	}()

	c.logger.Debug("connection opened", "conn", c.id, "path", cfg.Path)
	return c, nil
}

// ID returns the connection's id.
func (c *Connection) ID() string {
	return c.id
}

// Config returns the configuration the connection was opened with.
func (c *Connection) Config() config.Config {
	return c.cfg
}

// Hooks returns the connection's event observer set.
func (c *Connection) Hooks() *Hooks {
	return c.hooks
}

// Disposed reports whether Dispose has been called.
func (c *Connection) Disposed() bool {
	return c.disposed.Load()
}

// PendingUnits returns the number of units currently queued.
func (c *Connection) PendingUnits() int {
	return c.queue.Len()
}

// Done returns a channel closed when the worker has exited, which happens
// only after disposal teardown completes.
func (c *Connection) Done() <-chan struct{} {
	return c.workerDone
}

// Use schedules fn as one unit of work with exclusive access to the
// connection, and returns immediately with a future for its result.
//
// fn runs on the worker goroutine with a lease valid only for that run. ctx
// is the unit's cancellation signal: observed before the unit starts and at
// checkpoints inside lease calls, never mid-native-call. Scheduling on a
// disposed connection fails fast without consuming a queue slot.
func Use[T any](c *Connection, ctx context.Context, fn func(l *Lease) (T, error)) *dispatch.Future[T] {
	if c.disposed.Load() {
		return dispatch.FailedFuture[T](dispatch.Disposed("connection"))
	}

	fut := dispatch.NewFuture[T]()
	seq := c.clock.Next()

	var val T
	u := dispatch.NewUnit(seq, ctx, func(uctx context.Context) error {
		l := newLease(uctx, c.conn)
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
		return dispatch.FailedFuture[T](dispatch.Disposed("connection"))
	}

	c.logger.Debug("unit scheduled", "conn", c.id, "seq", seq, "kind", "use")
	return fut
}

// Exec schedules a one-shot statement and returns a future for its result.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) *dispatch.Future[engine.Result] {
	return Use(c, ctx, func(l *Lease) (engine.Result, error) {
		return l.Exec(sql, args...)
	})
}

// Prepare schedules statement compilation and returns a future for the
// prepared statement handle.
//
// Statements are cached by SQL text: preparing the same text twice returns
// the same Statement without recompiling.
func (c *Connection) Prepare(ctx context.Context, sql string) *dispatch.Future[*Statement] {
	if cached := c.stmts.lookup(sql); cached != nil && !cached.Disposed() {
		return dispatch.ResolvedFuture(cached)
	}
	if c.disposed.Load() {
		return dispatch.FailedFuture[*Statement](dispatch.Disposed("connection"))
	}

	fut := dispatch.NewFuture[*Statement]()
	seq := c.clock.Next()

	var stmt *Statement
	u := dispatch.NewUnit(seq, ctx, func(uctx context.Context) error {
		// A unit scheduled earlier may have compiled the same text already.
		if cached := c.stmts.lookup(sql); cached != nil && !cached.Disposed() {
			stmt = cached
			return nil
		}

		raw, err := c.conn.Prepare(uctx, sql)
		if err != nil {
			return boundaryErr(err)
		}

		s := &Statement{conn: c, sql: sql, raw: raw}
		if winner := c.stmts.store(s); winner != s {
			raw.Close()
			s = winner
		}
		stmt = s
		return nil
	}, func(err error) {
		fut.Complete(stmt, err)
	})

	if !c.queue.Enqueue(u) {
		return dispatch.FailedFuture[*Statement](dispatch.Disposed("connection"))
	}

	c.logger.Debug("unit scheduled", "conn", c.id, "seq", seq, "kind", "prepare")
	return fut
}

// Query builds a lazy stream over the rows of sql. Building performs no
// work; every subscription schedules a fresh unit that prepares, executes,
// and maps the rows through scan.
func Query[T any](c *Connection, sql string, scan RowMapper[T], args ...any) *Stream[T] {
	return &Stream[T]{
		run: func(sctx context.Context, deliver func(T) error) *dispatch.Future[struct{}] {
			return scheduleUnit(c, sctx, "query", func(uctx context.Context) error {
				stmt, err := c.conn.Prepare(uctx, sql)
				if err != nil {
					return boundaryErr(err)
				}
				defer stmt.Close()

				rows, err := stmt.Query(uctx, args...)
				if err != nil {
					return boundaryErr(err)
				}
				defer rows.Close()

				return pumpRows(rows, scan, deliver)
			})
		},
	}
}

// scheduleUnit enqueues a void unit of work, with the disposed fast path.
func scheduleUnit(c *Connection, ctx context.Context, kind string, run func(ctx context.Context) error) *dispatch.Future[struct{}] {
	if c.disposed.Load() {
		return dispatch.FailedFuture[struct{}](dispatch.Disposed("connection"))
	}

	fut := dispatch.NewFuture[struct{}]()
	seq := c.clock.Next()

	u := dispatch.NewUnit(seq, ctx, run, func(err error) {
		fut.Complete(struct{}{}, err)
	})

	if !c.queue.Enqueue(u) {
		return dispatch.FailedFuture[struct{}](dispatch.Disposed("connection"))
	}

	c.logger.Debug("unit scheduled", "conn", c.id, "seq", seq, "kind", kind)
	return fut
}

// Dispose tears the connection down: the flag flips immediately so later
// scheduling fails fast, and teardown is appended as the queue's final unit.
// Everything scheduled before Dispose still runs; the native handle and all
// cached statements are released on the worker, in order, as the last unit.
//
// Idempotent: every call returns the same future.
func (c *Connection) Dispose() *dispatch.Future[struct{}] {
	c.disposeOnce.Do(func() {
		c.disposed.Store(true)
		fut := dispatch.NewFuture[struct{}]()
		c.disposeFut = fut

		seq := c.clock.Next()
		final := dispatch.NewUnit(seq, context.Background(), func(context.Context) error {
			var firstErr error
			for _, s := range c.stmts.drain() {
				s.disposed.Store(true)
				s.finalized.Store(true)
				if err := s.raw.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			if err := c.conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			c.queue.Close()

			if firstErr != nil {
				return boundaryErr(firstErr)
			}
			return nil
		}, func(err error) {
			fut.Complete(struct{}{}, err)
		})

		// Seal cannot fail: the once guard means nobody sealed before us.
		c.queue.Seal(final)
		c.logger.Debug("connection disposing", "conn", c.id, "seq", seq)
	})

	return c.disposeFut
}
