package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRunWithGolden(t *testing.T) {
	s := loadTestScenario(t, "weekly_detach_and_delete")

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, "create", result.Trace[0].Op)
	assert.Equal(t, outcomeOK, result.Trace[2].Outcome)
}

func TestScenarios(t *testing.T) {
	for _, name := range []string{
		"series_edit_split",
		"reconcile_and_errors",
		"unbounded_horizon",
	} {
		t.Run(name, func(t *testing.T) {
			s := loadTestScenario(t, name)
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRunReportsErrorOutcomes(t *testing.T) {
	s := loadTestScenario(t, "reconcile_and_errors")
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	var outcomes []string
	for _, ev := range result.Trace {
		outcomes = append(outcomes, ev.Outcome)
	}
	assert.Equal(t, []string{
		"ok", "ok", "INVALID_SCOPE", "VALIDATION", "VALIDATION", "INVALID_RULE", "ok", "ok", "NOT_FOUND",
	}, outcomes)
	assert.Empty(t, result.Calendar)
}

const minimalScenario = `
name: minimal
description: one generic event
now: 2024-03-01T12:00:00Z
flow:
  - op: create
    as: meeting
    args:
      kind: GENERIC
      title: Review
      start: "2024-03-04T15:00"
      end: "2024-03-04T16:00"
      clinician_id: 1
assertions:
  - type: trace_contains
    op: create
`

func TestRunFailedExpectation(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario + `
  - type: trace_count
    op: create
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "trace_count")
	assert.Equal(t, "2024-03-04 15:00-16:00 GENERIC single title=\"Review\"\n", result.Calendar)
}

func TestRunUnexpectedOutcome(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
description: expects an error that does not happen
now: 2024-03-01T12:00:00Z
flow:
  - op: create
    args:
      kind: GENERIC
      title: Review
      start: "2024-03-04T15:00"
      end: "2024-03-04T16:00"
      clinician_id: 1
    expect: { error: VALIDATION }
  - op: create
    args:
      kind: GENERIC
      start: "2024-03-04T15:00"
      end: "2024-03-04T16:00"
      clinician_id: 1
assertions:
  - type: graph_valid
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"flow[0] create: outcome ok, want VALIDATION",
		"flow[1] create: unexpected error VALIDATION",
	}, result.Errors)
}

func TestRunUnknownTarget(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unbound
description: refers to a name nothing bound
now: 2024-03-01T12:00:00Z
flow:
  - op: get
    target: ghost
assertions:
  - type: graph_valid
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target "ghost"`)
}

func TestRunSetupFailure(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_setup
description: setup that the engine rejects
now: 2024-03-01T12:00:00Z
setup:
  - op: create
    args:
      kind: GENERIC
      start: "2024-03-04T15:00"
      end: "2024-03-04T16:00"
      clinician_id: 1
flow:
  - op: check
assertions:
  - type: graph_valid
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] create: failed with VALIDATION")
}

func TestRunNoMemberOnDate(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: no_member
description: selects a date outside the series
now: 2024-03-01T12:00:00Z
setup:
  - op: create
    as: daily
    args:
      kind: GENERIC
      title: Daily
      start: "2024-03-04T15:00"
      end: "2024-03-04T16:00"
      clinician_id: 1
      recurrence_rule: FREQ=DAILY;COUNT=2
flow:
  - op: get
    target: daily
    on: "2024-03-09"
assertions:
  - type: graph_valid
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no member on 2024-03-09")
}

func TestTraceEventString(t *testing.T) {
	ev := TraceEvent{Seq: 4, Op: "edit", Target: "weekly", On: "2024-01-22", Scope: "series", Outcome: "CONFLICT"}
	assert.Equal(t, "4 edit target=weekly on=2024-01-22 scope=series -> CONFLICT", ev.String())

	ev = TraceEvent{Seq: 1, Op: "create", As: "x", Args: map[string]any{"title": "t"}, Outcome: outcomeOK}
	assert.Equal(t, "1 create as=x -> ok", ev.String())
}

func TestSnapshot(t *testing.T) {
	r := NewResult()
	r.AddTrace(TraceEvent{Seq: 1, Op: "check", Outcome: outcomeOK})
	r.Calendar = "2024-01-01 all-day GENERIC single\n"

	want := "# demo\n-- trace --\n1 check -> ok\n-- calendar --\n2024-01-01 all-day GENERIC single\n"
	assert.Equal(t, want, string(Snapshot("demo", r)))
}
