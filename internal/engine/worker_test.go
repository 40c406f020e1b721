package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	rootID int64
	jobID  string
}

type jobRecorder struct {
	mu   sync.Mutex
	runs []recordedRun
}

func (r *jobRecorder) record(rootID int64, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, recordedRun{rootID, jobID})
}

func (r *jobRecorder) snapshot() []recordedRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRun(nil), r.runs...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWorker_RunsJobsInOrder(t *testing.T) {
	rec := &jobRecorder{}
	w := NewWorker(func(_ context.Context, rootID int64, jobID string) error {
		rec.record(rootID, jobID)
		return nil
	}, quietLogger())

	require.True(t, w.Enqueue(1, "a"))
	require.True(t, w.Enqueue(2, "b"))
	require.True(t, w.Enqueue(3, "c"))
	assert.Equal(t, 3, w.Pending())

	startWorker(t, w)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Drain(ctx))

	assert.Equal(t, []recordedRun{{1, "a"}, {2, "b"}, {3, "c"}}, rec.snapshot())
	assert.Zero(t, w.Pending())
}

func TestWorker_NewerJobSupersedesQueued(t *testing.T) {
	rec := &jobRecorder{}
	w := NewWorker(func(_ context.Context, rootID int64, jobID string) error {
		rec.record(rootID, jobID)
		return nil
	}, quietLogger())

	w.Enqueue(1, "old")
	w.Enqueue(1, "new")

	startWorker(t, w)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Drain(ctx))

	assert.Equal(t, []recordedRun{{1, "new"}}, rec.snapshot())
}

func TestWorker_CancelStopsRunningJob(t *testing.T) {
	started := make(chan struct{})
	w := NewWorker(func(ctx context.Context, _ int64, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, quietLogger())

	w.Enqueue(1, "slow")
	startWorker(t, w)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	had, err := w.Cancel(ctx, 1)
	require.NoError(t, err)
	assert.True(t, had)
	require.NoError(t, w.Drain(ctx))

	had, err = w.Cancel(ctx, 1)
	require.NoError(t, err)
	assert.False(t, had, "nothing left to cancel")
}

func TestWorker_CancelDropsQueuedJob(t *testing.T) {
	rec := &jobRecorder{}
	w := NewWorker(func(_ context.Context, rootID int64, jobID string) error {
		rec.record(rootID, jobID)
		return nil
	}, quietLogger())

	w.Enqueue(1, "dropped")
	w.Enqueue(2, "kept")
	had, err := w.Cancel(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, had)

	startWorker(t, w)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Drain(ctx))

	assert.Equal(t, []recordedRun{{2, "kept"}}, rec.snapshot())
}

func TestWorker_FailedJobDoesNotStopProcessing(t *testing.T) {
	rec := &jobRecorder{}
	w := NewWorker(func(_ context.Context, rootID int64, jobID string) error {
		rec.record(rootID, jobID)
		if rootID == 1 {
			return errors.New("boom")
		}
		return nil
	}, quietLogger())

	w.Enqueue(1, "fails")
	w.Enqueue(2, "runs")

	startWorker(t, w)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Drain(ctx))

	assert.Len(t, rec.snapshot(), 2)
}

func TestWorker_DrainRespectsContext(t *testing.T) {
	w := NewWorker(func(context.Context, int64, string) error { return nil }, quietLogger())
	w.Enqueue(1, "never-run")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Drain(ctx), context.DeadlineExceeded)
}

func TestWorker_StopEndsRun(t *testing.T) {
	w := NewWorker(func(context.Context, int64, string) error { return nil }, quietLogger())

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.False(t, w.Enqueue(1, "late"))
}
