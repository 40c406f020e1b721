package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// JobFunc runs one job. The context is cancelled when the job is
// superseded or cancelled.
type JobFunc func(ctx context.Context, rootID int64, jobID string) error

// Worker runs materialization jobs one at a time in FIFO order.
//
// At most one job per root is in flight. Enqueueing a job for a root
// supersedes any older job for it: a queued one is skipped, a running one
// is cancelled.
//
// Thread-safety model:
//   - Enqueue(), Cancel(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Worker struct {
	queue *jobQueue
	run   JobFunc
	log   *slog.Logger

	mu     sync.Mutex
	latest map[int64]string // root -> id of the newest job
	active *activeJob
	idle   *sync.Cond
}

type activeJob struct {
	job
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a worker that executes jobs with run.
func NewWorker(run JobFunc, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		queue:  newJobQueue(),
		run:    run,
		log:    log,
		latest: make(map[int64]string),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Enqueue schedules a job for rootID, superseding older jobs for the same
// root. Returns false if the worker has been stopped.
func (w *Worker) Enqueue(rootID int64, jobID string) bool {
	w.mu.Lock()
	w.latest[rootID] = jobID
	if w.active != nil && w.active.RootID == rootID {
		w.active.cancel()
	}
	w.mu.Unlock()

	return w.queue.Push(job{ID: jobID, RootID: rootID})
}

// Cancel drops any queued job for rootID and cancels the running one, then
// waits for it to finish. It reports whether a job was queued or running.
func (w *Worker) Cancel(ctx context.Context, rootID int64) (bool, error) {
	w.mu.Lock()
	_, queued := w.latest[rootID]
	delete(w.latest, rootID)
	w.queue.Drop(rootID)
	w.idle.Broadcast()
	var running *activeJob
	if w.active != nil && w.active.RootID == rootID {
		running = w.active
		running.cancel()
	}
	w.mu.Unlock()

	if running == nil {
		return queued, nil
	}
	select {
	case <-running.done:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// Pending returns the number of roots with a queued or running job.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.latest)
}

// Drain blocks until no job is queued or running, or ctx is done.
func (w *Worker) Drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.idle.Broadcast()
		w.mu.Unlock()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.latest) > 0 || w.active != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.idle.Wait()
	}
	return nil
}

// Run processes jobs until ctx is cancelled or Stop is called.
//
// ERROR HANDLING: a failed job is logged and processing continues; the job
// function records the failure on the series itself.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting")

	for {
		j, ok := w.queue.Pop()
		if ok {
			w.process(ctx, j)
			continue
		}

		select {
		case <-ctx.Done():
			w.log.Info("worker stopping: context cancelled")
			w.queue.Close()
			return ctx.Err()

		case _, open := <-w.queue.Ready():
			// Ready is closed with the queue.
			if !open && w.queue.Len() == 0 {
				w.log.Info("worker stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue, which makes Run return.
func (w *Worker) Stop() {
	w.queue.Close()
}

func (w *Worker) process(ctx context.Context, j job) {
	w.mu.Lock()
	if w.latest[j.RootID] != j.ID {
		w.idle.Broadcast()
		w.mu.Unlock()
		w.log.Debug("job superseded", "job", j.ID, "root", j.RootID)
		return
	}
	jctx, cancel := context.WithCancel(ctx)
	a := &activeJob{job: j, cancel: cancel, done: make(chan struct{})}
	w.active = a
	w.mu.Unlock()

	w.log.Info("job started", "job", j.ID, "root", j.RootID)
	err := w.run(jctx, j.RootID, j.ID)
	cancel()

	w.mu.Lock()
	w.active = nil
	if w.latest[j.RootID] == j.ID {
		delete(w.latest, j.RootID)
	}
	w.idle.Broadcast()
	w.mu.Unlock()
	close(a.done)

	switch {
	case err == nil:
		w.log.Info("job finished", "job", j.ID, "root", j.RootID)
	case errors.Is(err, context.Canceled):
		w.log.Info("job cancelled", "job", j.ID, "root", j.RootID)
	default:
		w.log.Error("job failed", "job", j.ID, "root", j.RootID, "error", err)
	}
}
