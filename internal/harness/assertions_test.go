package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strand/internal/testutil"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: "op", Op: "first", Kind: "exec", SQL: "SELECT 1"},
		{Type: "outcome", Op: "first", Outcome: "completed"},
		{Type: "op", Op: "second", Kind: "query", SQL: "SELECT 2"},
		{Type: "value", Op: "second", Value: []any{2}},
		{Type: "outcome", Op: "second", Outcome: "cancelled", Error: "CANCELLED"},
	}
}

func stubConnWithCalls(t *testing.T) *testutil.StubConn {
	t.Helper()

	eng := testutil.NewStubEngine()
	conn, err := eng.Open(context.Background(), "stub:")
	require.NoError(t, err)

	_, err = conn.Exec(context.Background(), "SELECT 1")
	require.NoError(t, err)
	_, err = conn.Exec(context.Background(), "SELECT 1")
	require.NoError(t, err)

	return eng.Conn()
}

func TestAssertTraceOrder_Holds(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Ops: []string{"first", "second"}})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Ops: []string{"second", "first"}})
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceOrder, ae.Type)
	assert.Contains(t, ae.Error(), "should be before")
}

func TestAssertTraceOrder_MissingOp(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Ops: []string{"first", "ghost"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing op: ghost")
}

func TestAssertTraceContains(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Op: "second", Outcome: "cancelled"})
	assert.NoError(t, err)

	err = assertTraceContains(sampleTrace(), Assertion{Op: "second", Outcome: "completed"})
	assert.Error(t, err)
}

func TestAssertCallCount(t *testing.T) {
	sc := stubConnWithCalls(t)

	err := assertCallCount(nil, sc, Assertion{Call: "exec", SQL: "SELECT 1", Count: 2})
	assert.NoError(t, err)

	err = assertCallCount(nil, sc, Assertion{Call: "exec", SQL: "SELECT 1", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 calls")
}

func TestAssertHandleClosed(t *testing.T) {
	closed := true
	open := false

	result := NewResult()
	result.HandleClosed = true

	assert.NoError(t, assertHandleClosed(result, Assertion{Closed: &closed}))
	assert.Error(t, assertHandleClosed(result, Assertion{Closed: &open}))
}

func TestAssertionError_MessageIncludesTrace(t *testing.T) {
	ae := &AssertionError{
		Type:     AssertTraceContains,
		Expected: "op x with outcome completed",
		Actual:   "not found in trace",
		Trace:    sampleTrace(),
	}

	msg := ae.Error()
	assert.Contains(t, msg, "Assertion failed: trace_contains")
	assert.Contains(t, msg, "Expected: op x with outcome completed")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "op first (exec) SELECT 1")
}
