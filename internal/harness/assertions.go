package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/strand/internal/testutil"
)

// AssertionError is returned when a scenario assertion fails. It carries the
// full trace so the failure message is debuggable on its own.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		switch event.Type {
		case "op":
			fmt.Fprintf(&buf, "  [%d] op %s (%s) %s\n", i+1, event.Op, event.Kind, event.SQL)
		case "value":
			fmt.Fprintf(&buf, "  [%d] value %s %v\n", i+1, event.Op, event.Value)
		case "outcome":
			fmt.Fprintf(&buf, "  [%d] outcome %s %s %s\n", i+1, event.Op, event.Outcome, event.Error)
		}
	}

	return buf.String()
}

// Assert checks one assertion against the result and the stub engine's call
// log. Returns nil when the assertion holds.
func Assert(result *Result, sc *testutil.StubConn, a Assertion) error {
	switch a.Type {
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertCallCount:
		return assertCallCount(result.Trace, sc, a)
	case AssertHandleClosed:
		return assertHandleClosed(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceOrder checks that the named operations reached their outcomes
// in the given order. Intervening operations are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type == "outcome" && positions[event.Op] == 0 {
			positions[event.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceContains checks that the named operation reached the given
// outcome.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Type == "outcome" && event.Op == a.Op && event.Outcome == a.Outcome {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s with outcome %s", a.Op, a.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertCallCount checks how many times the stub engine saw a native call,
// optionally filtered by statement text.
func assertCallCount(trace []TraceEvent, sc *testutil.StubConn, a Assertion) error {
	count := 0
	for _, call := range sc.CallsFor(a.Call) {
		if a.SQL == "" || call.SQL == a.SQL {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d %s calls for %q", a.Count, a.Call, a.SQL),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}

	return nil
}

func assertHandleClosed(result *Result, a Assertion) error {
	if result.HandleClosed != *a.Closed {
		return &AssertionError{
			Type:     AssertHandleClosed,
			Expected: fmt.Sprintf("handle closed = %v", *a.Closed),
			Actual:   fmt.Sprintf("handle closed = %v", result.HandleClosed),
			Trace:    result.Trace,
		}
	}
	return nil
}
