package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: cli_pass
description: exec then dispose
conn_id: conn-cli
script:
  - sql: "INSERT INTO t (x) VALUES (?)"
    result:
      last_insert_id: 1
      rows_affected: 1
flow:
  - id: insert
    kind: exec
    sql: "INSERT INTO t (x) VALUES (?)"
    args: [7]
    expect:
      outcome: completed
      rows_affected: 1
  - id: shutdown
    kind: dispose
assertions:
  - type: handle_closed
    closed: true
`

const failingScenario = `
name: cli_fail
description: expectation cannot hold
conn_id: conn-cli
script:
  - sql: "INSERT INTO t (x) VALUES (?)"
    result:
      rows_affected: 1
flow:
  - id: insert
    kind: exec
    sql: "INSERT INTO t (x) VALUES (?)"
    expect:
      outcome: completed
      rows_affected: 2
`

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScenarioPass(t *testing.T) {
	path := writeScenarioFile(t, passingScenario)

	rootOpts := &RootOptions{Format: "text"}
	out, err := runCommand(t, NewScenarioCommand(rootOpts), []string{path})
	require.NoError(t, err)
	assert.Contains(t, out, "PASS cli_pass")
}

func TestScenarioFail(t *testing.T) {
	path := writeScenarioFile(t, failingScenario)

	rootOpts := &RootOptions{Format: "text"}
	out, err := runCommand(t, NewScenarioCommand(rootOpts), []string{path})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL cli_fail")
}

func TestScenarioJSONOutput(t *testing.T) {
	path := writeScenarioFile(t, passingScenario)

	rootOpts := &RootOptions{Format: "json"}
	out, err := runCommand(t, NewScenarioCommand(rootOpts), []string{path})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cli_pass", data["name"])
	assert.Equal(t, true, data["pass"])
}

func TestScenarioMissingFile(t *testing.T) {
	rootOpts := &RootOptions{Format: "text"}
	out, err := runCommand(t, NewScenarioCommand(rootOpts), []string{"/nonexistent/scenario.yaml"})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [scenario_load_failed]")
}

func TestScenarioInvalidYAML(t *testing.T) {
	path := writeScenarioFile(t, "name: bad\nflow: []\n")

	rootOpts := &RootOptions{Format: "text"}
	_, err := runCommand(t, NewScenarioCommand(rootOpts), []string{path})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
