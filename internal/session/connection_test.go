package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strand/internal/config"
	"github.com/roach88/strand/internal/dispatch"
	"github.com/roach88/strand/internal/engine"
	"github.com/roach88/strand/internal/testutil"
)

// newTestConn opens a connection against a stub engine and tears it down at
// the end of the test.
func newTestConn(t *testing.T) (*Connection, *testutil.StubConn) {
	t.Helper()

	eng := testutil.NewStubEngine()
	c, err := Open(context.Background(), eng, config.Default(),
		WithIDGenerator(testutil.NewFixedIDGenerator("test-conn")),
		WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Dispose()
		select {
		case <-c.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not exit")
		}
	})

	return c, eng.Conn()
}

// blockWorker parks the worker inside a unit until the returned release func
// is called. Used to make queue contents observable deterministically.
func blockWorker(t *testing.T, c *Connection) func() {
	t.Helper()

	gate := make(chan struct{})
	started := make(chan struct{})
	Use(c, context.Background(), func(l *Lease) (struct{}, error) {
		close(started)
		<-gate
		return struct{}{}, nil
	})
	<-started

	return func() { close(gate) }
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), testutil.NewStubEngine(), config.Default().WithPath(""))
	assert.Error(t, err)
}

func TestOpen_EngineFailure(t *testing.T) {
	eng := testutil.NewStubEngine()
	eng.FailOpen(errors.New("disk gone"))

	_, err := Open(context.Background(), eng, config.Default())
	assert.ErrorContains(t, err, "disk gone")
}

func TestConnection_ExecThroughQueue(t *testing.T) {
	c, sc := newTestConn(t)
	sc.ScriptResult("INSERT INTO items (name) VALUES (?)",
		engine.Result{LastInsertID: 42, RowsAffected: 1})

	res, err := c.Exec(context.Background(), "INSERT INTO items (name) VALUES (?)", "x").
		Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.LastInsertID)
}

func TestConnection_SequentialHandoffOrdering(t *testing.T) {
	c, _ := newTestConn(t)

	var mu sync.Mutex
	var log []int

	// Three goroutines schedule in a relay: each enqueues its number, then
	// hands the baton on. Scheduling order 1,2,3 must mean execution order
	// 1,2,3 regardless of goroutine interleaving.
	futs := make(chan *dispatch.Future[struct{}], 3)
	baton := make([]chan struct{}, 4)
	for i := range baton {
		baton[i] = make(chan struct{})
	}
	close(baton[0])

	for i := 1; i <= 3; i++ {
		go func() {
			<-baton[i-1]
			fut := Use(c, context.Background(), func(l *Lease) (struct{}, error) {
				mu.Lock()
				log = append(log, i)
				mu.Unlock()
				return struct{}{}, nil
			})
			close(baton[i])
			futs <- fut
		}()
	}

	for range 3 {
		_, err := (<-futs).Await(context.Background())
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, log)
}

func TestConnection_FIFOUnderContention(t *testing.T) {
	c, _ := newTestConn(t)

	const goroutines = 8
	const perGoroutine = 25

	var scheduleMu sync.Mutex
	var execMu sync.Mutex
	nextID := 0
	var scheduled, executed []int

	var wg sync.WaitGroup
	futs := make(chan *dispatch.Future[struct{}], goroutines*perGoroutine)

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				// The lock makes "position in the queue" observable: the
				// id is assigned and the unit enqueued atomically.
				scheduleMu.Lock()
				id := nextID
				nextID++
				scheduled = append(scheduled, id)
				fut := Use(c, context.Background(), func(l *Lease) (struct{}, error) {
					execMu.Lock()
					executed = append(executed, id)
					execMu.Unlock()
					return struct{}{}, nil
				})
				scheduleMu.Unlock()
				futs <- fut
			}
		}()
	}

	wg.Wait()
	close(futs)
	for fut := range futs {
		_, err := fut.Await(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, scheduled, executed, "execution order must match enqueue order")
}

func TestUse_CancelBeforeStart(t *testing.T) {
	c, _ := newTestConn(t)
	release := blockWorker(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	sideEffects := 0
	fut := Use(c, ctx, func(l *Lease) (int, error) {
		sideEffects++
		return 1, nil
	})
	cancel() // fires while the unit is still queued
	release()

	_, err := fut.Await(context.Background())
	assert.True(t, dispatch.IsCancelled(err))
	assert.Equal(t, 0, sideEffects, "a unit cancelled before start must have no side effects")
}

func TestDispose_RunsPendingUnitsFirst(t *testing.T) {
	c, sc := newTestConn(t)
	release := blockWorker(t, c)

	sc.ScriptResult("UPDATE items SET qty = 0", engine.Result{RowsAffected: 3})
	pending := c.Exec(context.Background(), "UPDATE items SET qty = 0")
	disposeFut := c.Dispose()
	release()

	res, err := pending.Await(context.Background())
	require.NoError(t, err, "work scheduled before Dispose must still run")
	assert.Equal(t, int64(3), res.RowsAffected)

	_, err = disposeFut.Await(context.Background())
	require.NoError(t, err)

	assert.True(t, sc.Closed(), "teardown must release the native handle")

	calls := sc.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "close", calls[len(calls)-1].Op, "the handle close must be the last native call")
}

func TestDispose_WorkerExits(t *testing.T) {
	c, _ := newTestConn(t)

	_, err := c.Dispose().Await(context.Background())
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after disposal")
	}
}

func TestDispose_Idempotent(t *testing.T) {
	c, _ := newTestConn(t)

	first := c.Dispose()
	second := c.Dispose()
	assert.Same(t, first, second, "every Dispose call returns the same future")
}

func TestDispose_RejectsLaterWorkWithoutQueueSlot(t *testing.T) {
	c, _ := newTestConn(t)
	release := blockWorker(t, c)

	c.Dispose()
	assert.True(t, c.Disposed())

	before := c.PendingUnits()
	fut := Use(c, context.Background(), func(l *Lease) (int, error) {
		return 1, nil
	})

	_, err := fut.Await(context.Background())
	assert.True(t, dispatch.IsDisposed(err))
	assert.Equal(t, before, c.PendingUnits(), "a rejected unit must not consume a queue slot")

	release()
}

func TestPrepare_CachesBySQL(t *testing.T) {
	c, sc := newTestConn(t)
	ctx := context.Background()

	first, err := c.Prepare(ctx, "SELECT name FROM items").Await(ctx)
	require.NoError(t, err)

	second, err := c.Prepare(ctx, "SELECT name FROM items").Await(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second, "identical SQL must reuse the prepared statement")
	assert.Len(t, sc.CallsFor("prepare"), 1, "the statement must be compiled once")
}

func TestPrepare_AfterDispose(t *testing.T) {
	c, _ := newTestConn(t)
	_, err := c.Dispose().Await(context.Background())
	require.NoError(t, err)

	_, err = c.Prepare(context.Background(), "SELECT 1").Await(context.Background())
	assert.True(t, dispatch.IsDisposed(err))
}

func TestConnection_EngineErrorClassification(t *testing.T) {
	c, sc := newTestConn(t)
	sc.ScriptError("INSERT INTO items DEFAULT VALUES",
		&engine.Error{Code: 19, Message: "NOT NULL constraint failed"})

	_, err := c.Exec(context.Background(), "INSERT INTO items DEFAULT VALUES").
		Await(context.Background())
	assert.True(t, dispatch.IsEngine(err))
	assert.True(t, engine.IsEngineError(err), "the native error must stay reachable through the chain")
}

func TestConnection_CallbackErrorClassification(t *testing.T) {
	c, _ := newTestConn(t)

	boom := errors.New("caller bug")
	_, err := Use(c, context.Background(), func(l *Lease) (int, error) {
		return 0, boom
	}).Await(context.Background())

	assert.True(t, dispatch.IsCallback(err))
	assert.ErrorIs(t, err, boom)
}

func TestConnection_ID(t *testing.T) {
	c, _ := newTestConn(t)
	assert.Equal(t, "test-conn", c.ID())
}
