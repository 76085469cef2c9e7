package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strand/internal/dispatch"
	"github.com/roach88/strand/internal/engine"
	"github.com/roach88/strand/internal/testutil"
)

const namesSQL = "SELECT name FROM items ORDER BY id"

func scriptNames(sc *testutil.StubConn, names ...string) {
	rows := make([][]any, len(names))
	for i, n := range names {
		rows[i] = []any{n}
	}
	sc.ScriptRows(namesSQL, []string{"name"}, rows...)
}

func scanName(cols []engine.Column, vals []any) (string, error) {
	return vals[0].(string), nil
}

func TestStream_LazyUntilSubscribed(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a", "b")

	_ = Query(c, namesSQL, scanName)
	assert.Empty(t, sc.CallsFor("query"), "building a stream must perform no work")
}

func TestStream_CollectDeliversAllInOrder(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a", "b", "c")

	got, err := Query(c, namesSQL, scanName).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestStream_ResubscriptionReExecutes(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a", "b")

	st := Query(c, namesSQL, scanName)

	first, err := st.Collect(context.Background())
	require.NoError(t, err)
	second, err := st.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, sc.CallsFor("query"), 2, "each subscription re-executes the query")
}

func TestStream_EachStopEarlyCancels(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a", "b", "c", "d", "e")

	var got []string
	err := Query(c, namesSQL, scanName).Each(context.Background(), func(v string) bool {
		got = append(got, v)
		return len(got) < 2
	})

	assert.True(t, dispatch.IsCancelled(err))
	assert.Equal(t, []string{"a", "b"}, got, "values delivered before the stop remain valid")

	// The queue is not poisoned: the connection still serves work.
	_, err = c.Exec(context.Background(), "SELECT 1").Await(context.Background())
	assert.NoError(t, err)
}

func TestStream_IterBreakCancels(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a", "b", "c")

	var got []string
	for v, err := range Query(c, namesSQL, scanName).Iter(context.Background()) {
		require.NoError(t, err)
		got = append(got, v)
		break
	}
	assert.Equal(t, []string{"a"}, got)

	_, err := c.Exec(context.Background(), "SELECT 1").Await(context.Background())
	assert.NoError(t, err)
}

func TestStream_IterYieldsValuesThenTerminalError(t *testing.T) {
	c, sc := newTestConn(t)
	sc.ScriptError(namesSQL, &engine.Error{Code: 1, Message: "no such table: items"})

	var values []string
	var terminal error
	for v, err := range Query(c, namesSQL, scanName).Iter(context.Background()) {
		if err != nil {
			terminal = err
			continue
		}
		values = append(values, v)
	}

	assert.Empty(t, values)
	assert.True(t, dispatch.IsEngine(terminal))
}

func TestStream_MapperFailureIsCallback(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a", "b", "c")

	boom := errors.New("bad row")
	calls := 0
	got, err := Query(c, namesSQL, func(cols []engine.Column, vals []any) (string, error) {
		calls++
		if calls == 2 {
			return "", boom
		}
		return vals[0].(string), nil
	}).Collect(context.Background())

	assert.True(t, dispatch.IsCallback(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, got, "values delivered before the failure remain valid")
}

func TestStream_CancelBeforeStart(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Query(c, namesSQL, scanName).Each(ctx, func(string) bool { return true })
	assert.True(t, dispatch.IsCancelled(err))
	assert.Empty(t, sc.CallsFor("query"), "a unit cancelled before start must not touch the engine")
}

func TestStream_First(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a", "b", "c")

	v, ok, err := Query(c, namesSQL, scanName).First(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestStream_FirstOnEmptyResult(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc)

	_, ok, err := Query(c, namesSQL, scanName).First(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStream_RowsMapperCopiesValues(t *testing.T) {
	c, sc := newTestConn(t)
	sc.ScriptRows(namesSQL, []string{"name"}, []any{"a"}, []any{"b"})

	got, err := Query(c, namesSQL, Rows).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []any{"a"}, got[0])
	assert.Equal(t, []any{"b"}, got[1])
}

func TestQueryStatement_Stream(t *testing.T) {
	c, sc := newTestConn(t)
	ctx := context.Background()
	scriptNames(sc, "x", "y")

	stmt, err := c.Prepare(ctx, namesSQL).Await(ctx)
	require.NoError(t, err)

	got, err := QueryStatement(stmt, scanName).Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	// The statement is reused, not re-prepared per subscription.
	assert.Len(t, sc.CallsFor("prepare"), 1)
}

func TestQueryStatement_AfterDisposeFailsFast(t *testing.T) {
	c, sc := newTestConn(t)
	ctx := context.Background()
	scriptNames(sc, "x")

	stmt, err := c.Prepare(ctx, namesSQL).Await(ctx)
	require.NoError(t, err)
	_, err = stmt.Dispose().Await(ctx)
	require.NoError(t, err)

	err = QueryStatement(stmt, scanName).Each(ctx, func(string) bool { return true })
	assert.True(t, dispatch.IsDisposed(err))
}

func TestStream_AfterConnectionDispose(t *testing.T) {
	c, sc := newTestConn(t)
	scriptNames(sc, "a")

	_, err := c.Dispose().Await(context.Background())
	require.NoError(t, err)

	err = Query(c, namesSQL, scanName).Each(context.Background(), func(string) bool { return true })
	assert.True(t, dispatch.IsDisposed(err))
}
