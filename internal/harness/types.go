package harness

// TraceEvent is one entry in a scenario's execution trace.
//
// Three event types exist: "op" when an operation is scheduled, "value" for
// each stream value delivered, and "outcome" when the operation reaches a
// terminal state. Field order here fixes the golden files' key order.
type TraceEvent struct {
	Type    string      `json:"type"`
	Op      string      `json:"op"`
	Kind    string      `json:"kind,omitempty"`
	SQL     string      `json:"sql,omitempty"`
	Value   any         `json:"value,omitempty"`
	Outcome string      `json:"outcome,omitempty"`
	Error   string      `json:"error,omitempty"`
	Result  *ResultInfo `json:"result,omitempty"`
}

// ResultInfo is the recorded side-effect summary of a completed exec.
type ResultInfo struct {
	LastInsertID int64 `json:"last_insert_id"`
	RowsAffected int64 `json:"rows_affected"`
}

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains the recorded events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists expectation and assertion failures. Empty when Pass.
	Errors []string `json:"errors,omitempty"`

	// HandleClosed reports whether the native handle was released by the
	// time the scenario finished.
	HandleClosed bool `json:"handle_closed"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

func (r *Result) addOp(id, kind, sql string) {
	r.Trace = append(r.Trace, TraceEvent{Type: "op", Op: id, Kind: kind, SQL: sql})
}

func (r *Result) addValue(id string, value any) {
	r.Trace = append(r.Trace, TraceEvent{Type: "value", Op: id, Value: value})
}

func (r *Result) addOutcome(id, outcome, errCode string, info *ResultInfo) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    "outcome",
		Op:      id,
		Outcome: outcome,
		Error:   errCode,
		Result:  info,
	})
}
