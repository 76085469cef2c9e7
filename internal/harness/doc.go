// Package harness provides scenario-driven conformance testing for the
// serialized database core.
//
// The harness opens a connection against a scripted stub engine, drives a
// flow of operations through the real queue and worker, and records a
// deterministic trace of scheduling, delivered values, and outcomes.
//
// # Scenario Format
//
// Scenarios are defined in YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	conn_id: test-conn-001
//	script:
//	  - sql: "SELECT name FROM users ORDER BY id"
//	    columns: [name]
//	    rows:
//	      - [ada]
//	      - [grace]
//	flow:
//	  - id: op1
//	    kind: query
//	    sql: "SELECT name FROM users ORDER BY id"
//	    expect:
//	      outcome: completed
//	      values:
//	        - [ada]
//	        - [grace]
//	assertions:
//	  - type: trace_order
//	    ops: [op1]
//
// # Assertion Types
//
//   - trace_order: operation outcomes appear in the given order
//   - trace_contains: an operation reached the given outcome
//   - call_count: the stub engine saw a native call exactly N times
//   - handle_closed: whether teardown released the native handle
//
// # Deterministic Testing
//
// Scenarios run with a fixed connection id, a scripted engine, and strictly
// sequential flow execution - each operation is awaited before the next one
// is scheduled. The same scenario always produces a byte-identical trace,
// which is what the golden files under testdata/golden assert.
package harness
