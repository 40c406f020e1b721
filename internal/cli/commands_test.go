package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/recurrence"
	"github.com/roach88/cadence/internal/store"
)

type cliEnv struct {
	dir    string
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "cadence.yaml")
	body := "database:\n" +
		"  driver: sqlite3\n" +
		"  dsn: " + filepath.Join(dir, "cadence.db") + "\n" +
		"timezone: America/New_York\n" +
		"log:\n" +
		"  level: error\n"
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))
	return &cliEnv{dir: dir, config: cfg}
}

// run executes one command and returns its stdout.
func (e *cliEnv) run(format string, args ...string) (string, error) {
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{
		"--config", e.config,
		"--env-file", filepath.Join(e.dir, ".env"),
		"--format", format,
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func runJSON[T any](t *testing.T, e *cliEnv, args ...string) T {
	t.Helper()
	out, err := e.run("json", args...)
	require.NoError(t, err, out)

	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

const weeklyJSON = `{"kind":"APPOINTMENT","start":"2024-01-08T10:00","end":"2024-01-08T11:00",
"clinician_id":7,"location_id":3,"client_id":11,"status_id":1,"recurrence_rule":"FREQ=WEEKLY;COUNT=4"}`

func id(v int64) string { return strconv.FormatInt(v, 10) }

func TestCommandsEndToEnd(t *testing.T) {
	e := newCLIEnv(t)

	root := runJSON[calendar.View](t, e, "create", "-d", weeklyJSON)
	assert.Equal(t, "2024-01-08T10:00:00-05:00", root.Start)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=1;COUNT=4", root.RecurrenceRule)

	list := runJSON[[]calendar.View](t, e, "list", "--start", "2024-01-01", "--end", "2024-03-01")
	require.Len(t, list, 4)
	assert.Equal(t, root.ID, list[0].ID)
	for _, v := range list[1:] {
		require.NotNil(t, v.ParentID)
		assert.Equal(t, root.ID, *v.ParentID)
	}

	got := runJSON[calendar.View](t, e, "get", id(root.ID))
	assert.Equal(t, root.ID, got.ID)

	edited := runJSON[calendar.View](t, e, "edit", id(list[2].ID), "--scope", "occurrence", "-d", `{"notes":"moved"}`)
	assert.Equal(t, "moved", edited.Notes)
	assert.Nil(t, edited.ParentID)

	del := runJSON[engine.DeleteResult](t, e, "delete", id(list[3].ID), "--scope", "single")
	assert.Equal(t, []int64{list[3].ID}, del.Deleted)

	state := runJSON[calendar.SeriesStateView](t, e, "status", id(root.ID))
	assert.Equal(t, calendar.StatusComplete, state.Status)

	violations := runJSON[[]store.Violation](t, e, "check")
	assert.Empty(t, violations)

	out, err := e.run("text", "export", id(root.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "RRULE:FREQ=WEEKLY;INTERVAL=1;COUNT=4")
}

func TestCreateFromFile(t *testing.T) {
	e := newCLIEnv(t)
	path := filepath.Join(e.dir, "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"GENERIC","title":"Staff meeting",
		"start":"2024-02-01T09:00","end":"2024-02-01T10:00","clinician_id":7}`), 0o600))

	v := runJSON[calendar.View](t, e, "create", "-f", path)
	assert.Equal(t, "Staff meeting", v.Title)
	assert.False(t, v.IsRecurring)

	out, err := e.run("text", "list", "--start", "2024-02-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Staff meeting")
	assert.Contains(t, out, "1 event(s)")
}

func TestExpandCommand(t *testing.T) {
	e := newCLIEnv(t)

	p := runJSON[recurrence.Preview](t, e, "expand", "FREQ=MONTHLY;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=-1",
		"--start", "2024-01-31T09:00", "-n", "3")
	require.Len(t, p.Instants, 3)
	assert.Equal(t, "2024-03-29T09:00:00-04:00", p.Instants[2].Format("2006-01-02T15:04:05-07:00"))
	assert.False(t, p.Bounded)
}

func TestCommandErrors(t *testing.T) {
	e := newCLIEnv(t)

	tests := []struct {
		name     string
		args     []string
		wantExit int
		wantCode string
	}{
		{"missing event", []string{"get", "9999"}, ExitFailure, "NOT_FOUND"},
		{"bad scope", []string{"delete", "1", "--scope", "sideways"}, ExitFailure, "INVALID_SCOPE"},
		{"missing delete scope", []string{"delete", "1"}, ExitFailure, "INVALID_SCOPE"},
		{"missing edit scope", []string{"edit", "1", "-d", `{"notes":"x"}`}, ExitFailure, "INVALID_SCOPE"},
		{"bad rule", []string{"expand", "FREQ=FORTNIGHTLY", "--start", "2024-01-01"}, ExitFailure, "INVALID_RULE"},
		{"clinician without actor", []string{"list", "--role", "clinician"}, ExitFailure, "VALIDATION"},
		{"appointment without client", []string{"create", "-d",
			`{"kind":"APPOINTMENT","start":"2024-01-08T10:00","end":"2024-01-08T11:00","clinician_id":7,"location_id":3,"status_id":1}`},
			ExitFailure, "VALIDATION"},
		{"bad id", []string{"get", "abc"}, ExitCommandError, ""},
		{"no body", []string{"create"}, ExitCommandError, ""},
		{"unknown field", []string{"create", "-d", `{"colour":"red"}`}, ExitCommandError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.run("json", tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			if tt.wantCode == "" {
				return
			}
			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestMissingConfigIsCreated(t *testing.T) {
	dir := t.TempDir()
	e := &cliEnv{dir: dir, config: filepath.Join(dir, "sub", "cadence.yaml")}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = e.run("json", "check")
	require.NoError(t, err)
	assert.FileExists(t, e.config)
}
