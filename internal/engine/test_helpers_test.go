package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/store"
)

// testNow is a Monday.
var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// createTestEngine creates a sync engine over a temp-dir SQLite store with
// the clock stopped at testNow.
func createTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	return openTestEngine(t, path, func() time.Time { return testNow }, opts...)
}

// openTestEngine creates a sync engine over the SQLite file at path whose
// store stamps rows with now.
func openTestEngine(t *testing.T, path string, now func() time.Time, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	loc := testLocation(t)

	s, err := store.Open(path, store.WithLocation(loc), store.WithClock(now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := []Option{
		WithClock(NewFixedClock(testNow)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(s, append(base, opts...)...), s
}

// at returns the wall-clock time in New York.
func at(t *testing.T, year int, month time.Month, day, hour int) time.Time {
	t.Helper()
	return time.Date(year, month, day, hour, 0, 0, 0, testLocation(t))
}

// appointmentDraft is a one-hour appointment at start.
func appointmentDraft(start time.Time, rule string) calendar.Draft {
	return calendar.Draft{
		Kind:             calendar.Appointment,
		Start:            start,
		End:              start.Add(time.Hour),
		ClinicianID:      7,
		LocationID:       3,
		ClientID:         11,
		StatusID:         1,
		AppointmentTotal: 12500,
		Services: []calendar.ServiceLine{
			{ServiceID: 90837, Fee: 12500, Modifiers: []string{"GT"}},
		},
		RecurrenceRule: rule,
	}
}

// createWeekly creates the five-event weekly series starting Monday
// 2024-01-08 10:00 New York time and returns its members ordered by start.
func createWeekly(t *testing.T, e *Engine, s *store.Store) []calendar.Event {
	t.Helper()
	root, err := e.CreateSeries(context.Background(), appointmentDraft(at(t, 2024, 1, 8, 10), "FREQ=WEEKLY;COUNT=5"))
	require.NoError(t, err)
	members := seriesMembers(t, s, root.ID)
	require.Len(t, members, 5)
	return members
}

// seriesMembers loads a series and returns root then occurrences.
func seriesMembers(t *testing.T, s *store.Store, rootID int64) []calendar.Event {
	t.Helper()
	series, err := s.LoadSeries(context.Background(), rootID)
	require.NoError(t, err)
	return series.Members()
}

// allEvents lists every stored event.
func allEvents(t *testing.T, s *store.Store) []calendar.Event {
	t.Helper()
	events, err := s.ListEvents(context.Background(), store.EventFilter{})
	require.NoError(t, err)
	return events
}

// requireValidGraph fails if the store breaks any graph invariant.
func requireValidGraph(t *testing.T, s *store.Store) {
	t.Helper()
	violations, err := s.CheckGraph(context.Background())
	require.NoError(t, err)
	require.Empty(t, violations)
}

func startDates(t *testing.T, events []calendar.Event) []string {
	t.Helper()
	loc := testLocation(t)
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Start.In(loc).Format("2006-01-02 15:04")
	}
	return out
}
