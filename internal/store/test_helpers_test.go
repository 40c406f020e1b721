package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/calendar"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new temp-dir SQLite store for testing.
// Instants come back in America/New_York.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithLocation(loc), WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestAppointment builds an unsaved appointment starting at start.
func createTestAppointment(start time.Time) calendar.Event {
	return calendar.Event{
		Kind:             calendar.Appointment,
		Start:            start,
		End:              start.Add(time.Hour),
		ClinicianID:      7,
		LocationID:       3,
		ClientID:         11,
		StatusID:         1,
		AppointmentTotal: 12500,
		Services: []calendar.ServiceLine{
			{ServiceID: 90837, Fee: 12500, Modifiers: []string{"GT", "95"}},
		},
	}
}

// createTestGeneric builds an unsaved generic event starting at start.
func createTestGeneric(start time.Time, title string) calendar.Event {
	return calendar.Event{
		Kind:        calendar.Generic,
		Start:       start,
		End:         start.Add(30 * time.Minute),
		ClinicianID: 7,
		Title:       title,
	}
}

// insertSeries stores a weekly root and one occurrence per offset (in
// weeks) and returns them.
func insertSeries(t *testing.T, s *Store, start time.Time, weeks ...int) (calendar.Event, []calendar.Event) {
	t.Helper()
	ctx := context.Background()

	root := createTestAppointment(start)
	root.IsRecurring = true
	root.RecurrenceRule = "FREQ=WEEKLY;INTERVAL=1"

	var children []calendar.Event
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertEvent(ctx, &root); err != nil {
			return err
		}
		for _, w := range weeks {
			child := root.Occurrence(start.AddDate(0, 0, 7*w), s.Location())
			if err := tx.InsertEvent(ctx, &child); err != nil {
				return err
			}
			children = append(children, child)
		}
		return nil
	})
	require.NoError(t, err)
	return root, children
}
