package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the serialized form of a scenario execution, compared
// byte-for-byte against the golden files. Struct field order fixes the JSON
// key order, keeping snapshots stable.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	ConnID       string       `json:"conn_id"`
	Trace        []TraceEvent `json:"trace"`
}

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	connID := scenario.ConnID
	if connID == "" {
		connID = "test-conn-default"
	}
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		ConnID:       connID,
		Trace:        result.Trace,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
