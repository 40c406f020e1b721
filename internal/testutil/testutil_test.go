package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/calendar"
)

func TestSequence_NextAndReset(t *testing.T) {
	s := NewSequence()
	assert.Equal(t, int64(0), s.Current())

	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Current())

	s.Reset()
	assert.Equal(t, int64(0), s.Current())
	assert.Equal(t, int64(1), s.Next())
}

func TestSequence_ThreadSafe(t *testing.T) {
	s := NewSequence()
	const workers, calls = 50, 100

	var wg sync.WaitGroup
	seen := make(chan int64, workers*calls)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				seen <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		require.False(t, unique[v], "duplicate step %d", v)
		unique[v] = true
	}
	assert.Len(t, unique, workers*calls)
	assert.Equal(t, int64(workers*calls), s.Current())
}

func TestFixedJobID(t *testing.T) {
	assert.Equal(t, "job-test", NewFixedJobID("").Generate())

	g := NewFixedJobID("job-1")
	assert.Equal(t, "job-1", g.Generate())
	assert.Equal(t, "job-1", g.Generate())
}

func TestWall(t *testing.T) {
	ny := Location(t, "America/New_York")
	ts := Wall(t, ny, "2024-07-01T09:30")
	assert.Equal(t, "2024-07-01T09:30:00-04:00", ts.Format(time.RFC3339))
}

func TestNewEngine(t *testing.T) {
	ny := Location(t, "America/New_York")
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, clock := NewEngine(t, ny, now)
	assert.Equal(t, now, clock.Now())

	v, err := eng.CreateSeries(context.Background(), calendar.Draft{
		Kind:           calendar.Generic,
		Title:          "Supervision",
		Start:          Wall(t, ny, "2024-01-02T15:00"),
		End:            Wall(t, ny, "2024-01-02T16:00"),
		ClinicianID:    4,
		RecurrenceRule: "FREQ=DAILY;COUNT=3",
	})
	require.NoError(t, err)
	require.NotNil(t, v.Series)
	assert.Equal(t, calendar.StatusComplete, v.Series.Status)
}
