package harness

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/roach88/strand/internal/config"
	"github.com/roach88/strand/internal/dispatch"
	"github.com/roach88/strand/internal/engine"
	"github.com/roach88/strand/internal/session"
	"github.com/roach88/strand/internal/testutil"
)

// Run executes a scenario against a scripted stub engine and returns the
// recorded result. Execution is strictly sequential: each flow step is
// awaited before the next one is scheduled, so the trace is deterministic.
//
// Run returns an error only for harness-level problems (bad scenario,
// connection setup); operation failures are recorded in the result.
func Run(scenario *Scenario) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	connID := scenario.ConnID
	if connID == "" {
		connID = "test-conn-default"
	}

	eng := testutil.NewStubEngine()
	conn, err := session.Open(context.Background(), eng, config.Default(),
		session.WithIDGenerator(testutil.NewFixedIDGenerator(connID)),
		session.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		return nil, fmt.Errorf("open scenario connection: %w", err)
	}

	sc := eng.Conn()
	for _, entry := range scenario.Script {
		applyScript(sc, entry)
	}

	result := NewResult()
	stmts := map[string]*session.Statement{}

	for _, step := range scenario.Flow {
		if err := runStep(conn, stmts, step, result); err != nil {
			return nil, err
		}
	}

	// Snapshot the handle state before cleanup, so handle_closed reflects
	// what the flow itself did.
	result.HandleClosed = sc.Closed()

	// Scenarios that never dispose still tear down, outside the trace.
	conn.Dispose()
	<-conn.Done()

	for _, a := range scenario.Assertions {
		if err := Assert(result, sc, a); err != nil {
			result.AddError(err.Error())
		}
	}

	return result, nil
}

func applyScript(sc *testutil.StubConn, entry ScriptEntry) {
	switch {
	case entry.Error != "":
		sc.ScriptError(entry.SQL, &engine.Error{Code: entry.ErrorCode, Message: entry.Error})
	case entry.Result != nil:
		sc.ScriptResult(entry.SQL, engine.Result{
			LastInsertID: entry.Result.LastInsertID,
			RowsAffected: entry.Result.RowsAffected,
		})
	default:
		sc.ScriptRows(entry.SQL, entry.Columns, entry.Rows...)
	}
}

func runStep(conn *session.Connection, stmts map[string]*session.Statement, step FlowStep, result *Result) error {
	ctx := context.Background()
	if step.Cancel == "before_start" {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		ctx = cancelled
	}

	result.addOp(step.ID, step.Kind, step.SQL)

	var (
		opErr     error
		info      *ResultInfo
		delivered [][]any
	)

	switch step.Kind {
	case KindExec:
		res, err := conn.Exec(ctx, step.SQL, step.Args...).Await(context.Background())
		opErr = err
		if err == nil {
			info = &ResultInfo{LastInsertID: res.LastInsertID, RowsAffected: res.RowsAffected}
		}

	case KindQuery:
		st := session.Query(conn, step.SQL, session.Rows, step.Args...)
		opErr = consume(st, ctx, step.Take, step.ID, result, &delivered)

	case KindPrepare:
		stmt, err := conn.Prepare(ctx, step.SQL).Await(context.Background())
		opErr = err
		if err == nil {
			stmts[step.Statement] = stmt
		}

	case KindStatementExec:
		stmt := stmts[step.Statement]
		if stmt == nil {
			return fmt.Errorf("step %s: statement %q not prepared", step.ID, step.Statement)
		}
		res, err := stmt.Exec(ctx, step.Args...).Await(context.Background())
		opErr = err
		if err == nil {
			info = &ResultInfo{LastInsertID: res.LastInsertID, RowsAffected: res.RowsAffected}
		}

	case KindStatementQuery:
		stmt := stmts[step.Statement]
		if stmt == nil {
			return fmt.Errorf("step %s: statement %q not prepared", step.ID, step.Statement)
		}
		st := session.QueryStatement(stmt, session.Rows, step.Args...)
		opErr = consume(st, ctx, step.Take, step.ID, result, &delivered)

	case KindDisposeStatement:
		stmt := stmts[step.Statement]
		if stmt == nil {
			return fmt.Errorf("step %s: statement %q not prepared", step.ID, step.Statement)
		}
		_, opErr = stmt.Dispose().Await(context.Background())

	case KindDispose:
		_, opErr = conn.Dispose().Await(context.Background())

	default:
		return fmt.Errorf("step %s: unknown kind %q", step.ID, step.Kind)
	}

	outcome, errCode := outcomeOf(opErr)
	result.addOutcome(step.ID, outcome, errCode, info)

	if step.Expect != nil {
		checkExpect(step, outcome, errCode, info, delivered, result)
	}
	return nil
}

// consume subscribes to a stream, recording each delivered row. take > 0
// stops the subscription early after that many values.
func consume(st *session.Stream[[]any], ctx context.Context, take int, id string, result *Result, delivered *[][]any) error {
	return st.Each(ctx, func(row []any) bool {
		*delivered = append(*delivered, row)
		result.addValue(id, row)
		return take == 0 || len(*delivered) < take
	})
}

func checkExpect(step FlowStep, outcome, errCode string, info *ResultInfo, delivered [][]any, result *Result) {
	e := step.Expect

	if e.Outcome != "" && e.Outcome != outcome {
		result.AddError(fmt.Sprintf("step %s: expected outcome %s, got %s", step.ID, e.Outcome, outcome))
	}
	if e.Error != "" && e.Error != errCode {
		result.AddError(fmt.Sprintf("step %s: expected error %s, got %s", step.ID, e.Error, errCode))
	}
	if e.Values != nil {
		if len(e.Values) != len(delivered) {
			result.AddError(fmt.Sprintf("step %s: expected %d values, got %d", step.ID, len(e.Values), len(delivered)))
		} else {
			for i, want := range e.Values {
				if !reflect.DeepEqual([]any(want), delivered[i]) {
					result.AddError(fmt.Sprintf("step %s: value %d: expected %v, got %v", step.ID, i, want, delivered[i]))
				}
			}
		}
	}
	if e.RowsAffected != nil {
		if info == nil || info.RowsAffected != *e.RowsAffected {
			result.AddError(fmt.Sprintf("step %s: expected rows_affected %d", step.ID, *e.RowsAffected))
		}
	}
	if e.LastInsertID != nil {
		if info == nil || info.LastInsertID != *e.LastInsertID {
			result.AddError(fmt.Sprintf("step %s: expected last_insert_id %d", step.ID, *e.LastInsertID))
		}
	}
}

// outcomeOf maps a terminal error to its trace outcome and error code.
func outcomeOf(err error) (string, string) {
	switch {
	case err == nil:
		return "completed", ""
	case dispatch.IsCancelled(err):
		return "cancelled", string(dispatch.ErrCodeCancelled)
	case dispatch.IsDisposed(err):
		return "failed", string(dispatch.ErrCodeDisposed)
	case dispatch.IsEngine(err):
		return "failed", string(dispatch.ErrCodeEngine)
	case dispatch.IsCallback(err):
		return "failed", string(dispatch.ErrCodeCallback)
	default:
		return "failed", "UNKNOWN"
	}
}
