package engine

import "sync"

// job asks the worker to materialize a series up to its horizon.
type job struct {
	ID     string
	RootID int64
}

// jobQueue holds materialization jobs in arrival order, at most one per
// series. Push never blocks, so request handlers can enqueue while a long
// job runs.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []job
	closed bool

	// ready holds one token while jobs may be waiting and is closed with
	// the queue.
	ready chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{ready: make(chan struct{}, 1)}
}

// Push queues j. A job already queued for the same series is replaced in
// place by j. It reports false once the queue is closed.
func (q *jobQueue) Push(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	replaced := false
	for i := range q.jobs {
		if q.jobs[i].RootID == j.RootID {
			q.jobs[i], replaced = j, true
			break
		}
	}
	if !replaced {
		q.jobs = append(q.jobs, j)
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest job without waiting.
func (q *jobQueue) Pop() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	q.jobs[0] = job{}
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.jobs = nil
	}
	return j, true
}

// Drop removes the queued job of series rootID and reports whether there
// was one.
func (q *jobQueue) Drop(rootID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.jobs {
		if q.jobs[i].RootID == rootID {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// Ready fires after a Push and is closed by Close. Pop may still find the
// queue empty when it fires.
func (q *jobQueue) Ready() <-chan struct{} {
	return q.ready
}

func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close rejects further pushes and wakes the worker. Queued jobs can still
// be popped.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ready)
	}
}
