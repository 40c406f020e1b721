package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/calendar"
)

func TestCreateSeries_Standalone(t *testing.T) {
	e, s := createTestEngine(t)
	ctx := context.Background()

	v, err := e.CreateSeries(ctx, appointmentDraft(at(t, 2024, 1, 8, 10), ""))
	require.NoError(t, err)

	assert.False(t, v.IsRecurring)
	assert.Nil(t, v.Series)
	assert.Equal(t, "2024-01-08T10:00:00-05:00", v.Start)
	assert.Len(t, allEvents(t, s), 1)
}

func TestCreateSeries_CountMaterializesAll(t *testing.T) {
	e, s := createTestEngine(t)
	members := createWeekly(t, e, s)

	assert.Equal(t, []string{
		"2024-01-08 10:00",
		"2024-01-15 10:00",
		"2024-01-22 10:00",
		"2024-01-29 10:00",
		"2024-02-05 10:00",
	}, startDates(t, members))

	root := members[0]
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=1;COUNT=5", root.RecurrenceRule)
	for _, c := range members[1:] {
		assert.Equal(t, root.ID, c.ParentID)
		assert.True(t, c.IsRecurring)
		assert.Empty(t, c.RecurrenceRule)
		assert.Equal(t, c.Start.In(e.Location()).Format(calendar.OccurrenceDateLayout), c.OccurrenceDate)
		assert.Equal(t, time.Hour, c.Duration())

		require.Len(t, c.Services, 1)
		assert.Equal(t, int64(90837), c.Services[0].ServiceID)
		assert.NotEqual(t, root.Services[0].ID, c.Services[0].ID, "service lines must not be shared")
	}

	st, err := e.SeriesStatus(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusComplete, st.Status)
	assert.True(t, st.Horizon.Equal(members[4].Start))
	requireValidGraph(t, s)
}

func TestCreateSeries_UnboundedStopsAtHorizon(t *testing.T) {
	clock := NewFixedClock(testNow)
	e, s := createTestEngine(t, WithClock(clock), WithHorizonDays(28))
	ctx := context.Background()

	v, err := e.CreateSeries(ctx, appointmentDraft(at(t, 2024, 1, 8, 10), "FREQ=WEEKLY"))
	require.NoError(t, err)
	require.NotNil(t, v.Series)
	assert.Equal(t, calendar.StatusPartial, v.Series.Status)
	assert.Equal(t, "2024-01-22T10:00:00-05:00", v.Series.Horizon)
	assert.Len(t, seriesMembers(t, s, v.ID), 3)

	clock.Advance(7 * 24 * time.Hour)
	n, err := e.ExtendHorizons(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members := seriesMembers(t, s, v.ID)
	assert.Equal(t, "2024-01-29 10:00", startDates(t, members)[3])
	assert.Len(t, members, 4)
}

func TestCreateSeries_MaxOccurrencesCap(t *testing.T) {
	e, s := createTestEngine(t, WithMaxOccurrences(3))
	ctx := context.Background()

	v, err := e.CreateSeries(ctx, appointmentDraft(at(t, 2024, 1, 8, 10), "FREQ=DAILY;COUNT=10"))
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusPartial, v.Series.Status)
	assert.Len(t, seriesMembers(t, s, v.ID), 4)

	for _, want := range []int{7, 10} {
		n, err := e.ExtendHorizons(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, seriesMembers(t, s, v.ID), want)
	}

	st, err := e.SeriesStatus(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusComplete, st.Status)

	n, err := e.ExtendHorizons(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "complete series are not extended")
	requireValidGraph(t, s)
}

func TestCreateSeries_UntilBeforeStartYieldsRootOnly(t *testing.T) {
	e, s := createTestEngine(t)

	v, err := e.CreateSeries(context.Background(), appointmentDraft(at(t, 2024, 1, 8, 10), "FREQ=DAILY;UNTIL=20240101"))
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusComplete, v.Series.Status)
	assert.Len(t, seriesMembers(t, s, v.ID), 1)
}

func TestCreateSeries_Rejects(t *testing.T) {
	start := time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC)

	ooo := calendar.Draft{
		Kind:           calendar.OutOfOffice,
		Start:          start,
		End:            start.Add(8 * time.Hour),
		ClinicianID:    7,
		RecurrenceRule: "FREQ=WEEKLY",
	}
	noClient := appointmentDraft(start, "")
	noClient.ClientID = 0
	backwards := appointmentDraft(start, "")
	backwards.End = start.Add(-time.Hour)

	tests := []struct {
		name  string
		draft calendar.Draft
		check func(error) bool
	}{
		{"invalid rule", appointmentDraft(start, "FREQ=HOURLY"), IsInvalidRuleError},
		{"conflicting bounds", appointmentDraft(start, "FREQ=DAILY;COUNT=2;UNTIL=20240301"), IsInvalidRuleError},
		{"recurring out-of-office", ooo, IsValidationError},
		{"appointment without client", noClient, IsValidationError},
		{"end before start", backwards, IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := createTestEngine(t)
			_, err := e.CreateSeries(context.Background(), tt.draft)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Empty(t, allEvents(t, s), "nothing may be stored")
		})
	}
}

func TestCreateSeries_UnknownReference(t *testing.T) {
	dir := StaticDirectory{Client: {11: true}, Service: {99: true}}
	e, s := createTestEngine(t, WithDirectory(dir))

	_, err := e.CreateSeries(context.Background(), appointmentDraft(at(t, 2024, 1, 8, 10), "FREQ=WEEKLY;COUNT=2"))
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "services[0].service_id", ee.Field)
	assert.Empty(t, allEvents(t, s))
}

func TestCreateSeries_Async(t *testing.T) {
	e, s := createTestEngine(t, WithMode(ModeAsync), WithJobIDs(NewFixedGenerator("job-1")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := e.CreateSeries(ctx, appointmentDraft(at(t, 2024, 1, 8, 10), "FREQ=WEEKLY;COUNT=5"))
	require.NoError(t, err)
	require.NotNil(t, v.Series)
	assert.Equal(t, calendar.StatusPending, v.Series.Status)
	assert.Equal(t, "job-1", v.Series.JobID)
	assert.Len(t, seriesMembers(t, s, v.ID), 1, "nothing is materialized before the worker runs")

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	require.NoError(t, e.Drain(ctx))
	e.Stop()
	require.NoError(t, <-done)

	st, err := e.SeriesStatus(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusComplete, st.Status)
	assert.Equal(t, "job-1", st.JobID)
	assert.Len(t, seriesMembers(t, s, v.ID), 5)
	requireValidGraph(t, s)
}

func TestCreateSeries_AsyncFailureIsRecorded(t *testing.T) {
	e, s := createTestEngine(t, WithMode(ModeAsync), WithJobIDs(NewFixedGenerator("job-1")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := e.CreateSeries(ctx, appointmentDraft(at(t, 2024, 1, 8, 10), "FREQ=WEEKLY;COUNT=5"))
	require.NoError(t, err)

	_, err = s.DB().ExecContext(ctx, `UPDATE events SET recurrence_rule = 'FREQ=FORTNIGHTLY' WHERE id = ?`, v.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	require.NoError(t, e.Drain(ctx))
	e.Stop()
	require.NoError(t, <-done)

	st, err := e.SeriesStatus(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "FREQ")
}

func TestResumeJobs(t *testing.T) {
	async, s := createTestEngine(t, WithMode(ModeAsync))
	ctx := context.Background()

	// The process that queued the job went away before running it.
	v, err := async.CreateSeries(ctx, appointmentDraft(at(t, 2024, 1, 8, 10), "FREQ=WEEKLY;COUNT=5"))
	require.NoError(t, err)
	require.Equal(t, calendar.StatusPending, v.Series.Status)

	e := New(s, WithClock(NewFixedClock(testNow)), WithLogger(quietLogger()))
	n, err := e.ResumeJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := e.SeriesStatus(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusComplete, st.Status)
	assert.Len(t, seriesMembers(t, s, v.ID), 5)

	n, err = e.ResumeJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPreviewRule(t *testing.T) {
	e, _ := createTestEngine(t)

	p, err := e.PreviewRule("freq=weekly;byday=mo,we;count=3", at(t, 2024, 1, 8, 10), 5)
	require.NoError(t, err)
	assert.Len(t, p.Instants, 3)
	assert.False(t, p.Truncated)
	assert.True(t, p.Bounded)

	_, err = e.PreviewRule("FREQ=SOMETIMES", at(t, 2024, 1, 8, 10), 5)
	assert.True(t, IsInvalidRuleError(err))
}
