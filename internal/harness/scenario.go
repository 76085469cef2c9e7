package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Operation kinds accepted in flow steps.
const (
	KindExec             = "exec"
	KindQuery            = "query"
	KindPrepare          = "prepare"
	KindStatementExec    = "statement_exec"
	KindStatementQuery   = "statement_query"
	KindDisposeStatement = "dispose_statement"
	KindDispose          = "dispose"
)

// Scenario defines one conformance scenario: the engine script, the flow of
// operations, and the assertions over the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario; it is also the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ConnID is the fixed connection id, for deterministic traces.
	// Defaults to "test-conn-default".
	ConnID string `yaml:"conn_id,omitempty"`

	// Script lists the stub engine's canned responses, keyed by SQL text.
	Script []ScriptEntry `yaml:"script,omitempty"`

	// Flow is the operation sequence. Steps run strictly one after
	// another - each is awaited before the next is scheduled.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and engine call log.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScriptEntry is one canned engine response.
type ScriptEntry struct {
	// SQL is the statement text this entry answers.
	SQL string `yaml:"sql"`

	// Columns names the result columns for row-returning SQL.
	Columns []string `yaml:"columns,omitempty"`

	// Rows are the result rows, outermost first.
	Rows [][]any `yaml:"rows,omitempty"`

	// Result is the side-effect summary for non-row SQL.
	Result *ResultSpec `yaml:"result,omitempty"`

	// Error makes the statement fail with a native engine error.
	Error string `yaml:"error,omitempty"`

	// ErrorCode is the native result code reported with Error.
	ErrorCode int `yaml:"error_code,omitempty"`
}

// ResultSpec is the YAML shape of an exec result.
type ResultSpec struct {
	LastInsertID int64 `yaml:"last_insert_id,omitempty"`
	RowsAffected int64 `yaml:"rows_affected,omitempty"`
}

// FlowStep is one operation in the scenario flow.
type FlowStep struct {
	// ID names the step in traces and assertions.
	ID string `yaml:"id"`

	// Kind selects the operation; see the Kind constants.
	Kind string `yaml:"kind"`

	// SQL is the statement text, where the kind needs one.
	SQL string `yaml:"sql,omitempty"`

	// Args are positional bind arguments.
	Args []any `yaml:"args,omitempty"`

	// Statement is the handle key for prepared-statement kinds: prepare
	// stores under it, statement_* steps look it up.
	Statement string `yaml:"statement,omitempty"`

	// Take stops a query subscription after this many values, exercising
	// mid-stream cancellation. Zero consumes everything.
	Take int `yaml:"take,omitempty"`

	// Cancel set to "before_start" schedules the step with an already
	// cancelled context.
	Cancel string `yaml:"cancel,omitempty"`

	// Expect validates the step's outcome. Nil skips validation.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause is the expected terminal behavior of one step.
type ExpectClause struct {
	// Outcome is "completed", "cancelled", or "failed".
	Outcome string `yaml:"outcome"`

	// Error is the expected error code (DISPOSED, CANCELLED, ENGINE,
	// CALLBACK) for non-completed outcomes.
	Error string `yaml:"error,omitempty"`

	// Values are the expected delivered rows, in order.
	Values [][]any `yaml:"values,omitempty"`

	// RowsAffected, when set, must match the exec result.
	RowsAffected *int64 `yaml:"rows_affected,omitempty"`

	// LastInsertID, when set, must match the exec result.
	LastInsertID *int64 `yaml:"last_insert_id,omitempty"`
}

// Assertion validates the trace or the engine call log.
type Assertion struct {
	// Type is one of trace_order, trace_contains, call_count,
	// handle_closed.
	Type string `yaml:"type"`

	// Ops is the expected outcome order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Op names a step (trace_contains).
	Op string `yaml:"op,omitempty"`

	// Outcome is the expected outcome for Op (trace_contains).
	Outcome string `yaml:"outcome,omitempty"`

	// Call is the native call name (call_count): prepare, exec, query,
	// step, reset, finalize, close.
	Call string `yaml:"call,omitempty"`

	// SQL filters call_count to one statement text. Empty matches all.
	SQL string `yaml:"sql,omitempty"`

	// Count is the expected number of matching calls (call_count).
	Count int `yaml:"count,omitempty"`

	// Closed is the expected handle state (handle_closed).
	Closed *bool `yaml:"closed,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceOrder    = "trace_order"
	AssertTraceContains = "trace_contains"
	AssertCallCount     = "call_count"
	AssertHandleClosed  = "handle_closed"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping assertions.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// Validate checks structural invariants before execution.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must have at least one step")
	}

	seen := map[string]bool{}
	prepared := map[string]bool{}
	for i, step := range s.Flow {
		if step.ID == "" {
			return fmt.Errorf("flow[%d]: id is required", i)
		}
		if seen[step.ID] {
			return fmt.Errorf("flow[%d]: duplicate id %q", i, step.ID)
		}
		seen[step.ID] = true

		switch step.Kind {
		case KindExec, KindQuery:
			if step.SQL == "" {
				return fmt.Errorf("flow[%d] %s: sql is required for %s", i, step.ID, step.Kind)
			}
		case KindPrepare:
			if step.SQL == "" || step.Statement == "" {
				return fmt.Errorf("flow[%d] %s: prepare needs sql and statement", i, step.ID)
			}
			prepared[step.Statement] = true
		case KindStatementExec, KindStatementQuery, KindDisposeStatement:
			if step.Statement == "" {
				return fmt.Errorf("flow[%d] %s: %s needs statement", i, step.ID, step.Kind)
			}
			if !prepared[step.Statement] {
				return fmt.Errorf("flow[%d] %s: statement %q is never prepared", i, step.ID, step.Statement)
			}
		case KindDispose:
		default:
			return fmt.Errorf("flow[%d] %s: unknown kind %q", i, step.ID, step.Kind)
		}

		if step.Cancel != "" && step.Cancel != "before_start" {
			return fmt.Errorf("flow[%d] %s: unknown cancel mode %q", i, step.ID, step.Cancel)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertTraceOrder:
			if len(a.Ops) == 0 {
				return fmt.Errorf("assertions[%d]: trace_order needs ops", i)
			}
		case AssertTraceContains:
			if a.Op == "" || a.Outcome == "" {
				return fmt.Errorf("assertions[%d]: trace_contains needs op and outcome", i)
			}
		case AssertCallCount:
			if a.Call == "" {
				return fmt.Errorf("assertions[%d]: call_count needs call", i)
			}
		case AssertHandleClosed:
			if a.Closed == nil {
				return fmt.Errorf("assertions[%d]: handle_closed needs closed", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}

	return nil
}
