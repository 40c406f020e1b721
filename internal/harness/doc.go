// Package harness runs multi-step scheduling scenarios against a real
// engine and checks the resulting calendar.
//
// Each scenario gets a fresh in-memory SQLite store, a stopped clock and a
// fixed job id, so the same file always produces the same trace and the
// same final calendar.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: weekly_detach_and_delete
//	description: "Detaching one occurrence and deleting another"
//	timezone: America/New_York
//	now: 2024-01-01T12:00:00Z
//	setup:
//	  - op: create
//	    as: weekly
//	    args:
//	      kind: APPOINTMENT
//	      start: 2024-01-08T10:00
//	      end: 2024-01-08T11:00
//	      clinician_id: 7
//	      location_id: 3
//	      client_id: 11
//	      status_id: 1
//	      recurrence_rule: FREQ=WEEKLY;COUNT=4
//	flow:
//	  - op: delete
//	    target: weekly
//	    on: 2024-01-29
//	    scope: single
//	  - op: edit
//	    target: weekly
//	    on: 2024-01-22
//	    scope: occurrence
//	    args: { notes: moved }
//	    expect:
//	      result: { notes: moved }
//	assertions:
//	  - type: occurrences
//	    target: weekly
//	    dates: [2024-01-08, 2024-01-15]
//
// Steps name the event they act on with target, a name bound earlier by
// as. When on is set, the step acts on the member of target's series that
// starts (or was generated) on that local date instead.
//
// # Operations
//
//   - create, get, edit, delete, promote: the event operations
//   - reconcile: replace the rule of target's series with rule
//   - extend: run the horizon job once
//   - advance: move the clock forward by the duration in by
//   - check: scan the series graph
//
// # Assertion Types
//
//   - trace_contains: a step with the given op, target and outcome ran
//   - trace_order: steps with the given ops ran in this order
//   - trace_count: the op ran exactly count times
//   - final_state: one row of a table matches expect
//   - occurrences: the start dates of target's series, root first
//   - exceptions: the excluded dates of target's series
//   - graph_valid: the store has no series-graph violations
//
// # Golden Files
//
// RunWithGolden renders the trace and the final calendar as text and
// compares it with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
