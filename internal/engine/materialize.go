package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/recurrence"
	"github.com/roach88/cadence/internal/store"
)

// errSuperseded marks a job whose series has since been given to a newer
// job or removed.
var errSuperseded = errors.New("job superseded")

// run is the outcome of one materialization pass.
type run struct {
	Created   []calendar.Event
	Horizon   time.Time
	Exhausted bool
}

// state converts a pass into the series marker written after it.
func (r run) state(rootID int64, jobID string) calendar.SeriesState {
	st := calendar.SeriesState{RootID: rootID, Status: calendar.StatusPartial, Horizon: r.Horizon, JobID: jobID}
	if r.Exhausted {
		st.Status = calendar.StatusComplete
	}
	return st
}

// occurrenceKey identifies a rule instant by its date in the series zone.
// Rules repeat at most daily, so the date is unique within a series.
func (e *Engine) occurrenceKey(t time.Time) string {
	return t.In(e.loc).Format(calendar.OccurrenceDateLayout)
}

// ruleInstant is the instant the rule produced for child.
func (e *Engine) ruleInstant(root, child calendar.Event) time.Time {
	return calendar.RuleInstant(root, child, e.loc)
}

// windowEnd is the last instant a pass may materialize: none for bounded
// rules, otherwise the horizon or the latest existing child, whichever is
// later.
func (e *Engine) windowEnd(s *calendar.Series) time.Time {
	if s.Root.Rule == nil || s.Root.Rule.Bounded() {
		return time.Time{}
	}
	end := e.clock.Now().Add(e.horizon)
	if n := len(s.Children); n > 0 && s.Children[n-1].Start.After(end) {
		end = s.Children[n-1].Start
	}
	return end
}

// continuation returns the rule a successor root carries so that it keeps
// producing exactly the instants the original series had left. COUNT is
// converted to an UNTIL at the original last instant.
func (e *Engine) continuation(r *recurrence.Rule, start time.Time) (*recurrence.Rule, error) {
	if r.Count == 0 {
		return r, nil
	}
	seq, err := r.Sequence(start.In(e.loc))
	if err != nil {
		return nil, err
	}
	instants := seq.Take(r.Count)
	last := instants[len(instants)-1]
	return r.EndingBefore(last.Add(time.Second)), nil
}

// materialize creates the missing children of s up to through (zero means
// no time bound), skipping exceptions and stopping after maxOccurrences
// new children.
func (e *Engine) materialize(ctx context.Context, tx *store.Tx, s *calendar.Series, through time.Time) (run, error) {
	res := run{Horizon: s.Root.Anchor()}
	if s.Root.Rule == nil {
		res.Exhausted = true
		return res, nil
	}

	seq, err := s.Root.Rule.Sequence(s.Root.Anchor().In(e.loc))
	if err != nil {
		return res, err
	}

	// Children moved by a single edit still hold the instant they were
	// created for.
	existing := make(map[int64]bool, len(s.Children))
	for _, c := range s.Children {
		existing[e.ruleInstant(s.Root.Event, c.Event).Unix()] = true
	}
	excluded := make(map[string]bool, len(s.Exceptions))
	for _, ex := range s.Exceptions {
		excluded[e.occurrenceKey(ex)] = true
	}

	it := seq.Iterator()
	it.Next() // the root's own instant
	for {
		t, ok := it.Next()
		if !ok {
			res.Exhausted = true
			break
		}
		if !through.IsZero() && t.After(through) {
			break
		}
		if existing[t.Unix()] || excluded[e.occurrenceKey(t)] {
			res.Horizon = t
			continue
		}
		if len(res.Created) >= e.maxOccurrences {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		child := s.Root.Event.Occurrence(t, e.loc)
		if err := tx.InsertEvent(ctx, &child); err != nil {
			return res, err
		}
		res.Created = append(res.Created, child)
		res.Horizon = t
	}

	e.log.Debug("materialized occurrences",
		"root", s.Root.ID,
		"created", len(res.Created),
		"horizon", res.Horizon,
		"exhausted", res.Exhausted,
	)
	return res, nil
}

// settle brings a root's materialization up to date after it was created
// or restructured. In sync mode the pass runs inside tx; in async mode the
// root is marked pending and the returned job must be enqueued once tx
// commits.
func (e *Engine) settle(ctx context.Context, tx *store.Tx, rootID int64) (*job, error) {
	if e.mode == ModeAsync {
		j := &job{ID: e.jobIDs.Generate(), RootID: rootID}
		st := calendar.SeriesState{RootID: rootID, Status: calendar.StatusPending, JobID: j.ID}
		if prev, err := tx.GetSeriesState(ctx, rootID); err == nil {
			st.Horizon = prev.Horizon
		}
		if err := tx.PutSeriesState(ctx, &st); err != nil {
			return nil, err
		}
		return j, nil
	}

	s, err := tx.LoadSeries(ctx, rootID)
	if err != nil {
		return nil, err
	}
	res, err := e.materialize(ctx, tx, s, e.windowEnd(s))
	if err != nil {
		return nil, err
	}
	st := res.state(rootID, "")
	return nil, tx.PutSeriesState(ctx, &st)
}

// enqueue hands committed jobs to the worker.
func (e *Engine) enqueue(jobs []*job) {
	for _, j := range jobs {
		if j == nil {
			continue
		}
		if !e.worker.Enqueue(j.RootID, j.ID) {
			e.log.Warn("worker stopped; job dropped", "job", j.ID, "root", j.RootID)
		}
	}
}

// runJob is the worker's JobFunc: one materialization pass for a root.
func (e *Engine) runJob(ctx context.Context, rootID int64, jobID string) error {
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		st, err := e.ownState(ctx, tx, rootID, jobID)
		if err != nil {
			return err
		}
		st.Status = calendar.StatusRunning
		return tx.PutSeriesState(ctx, &st)
	})
	if errors.Is(err, errSuperseded) {
		return nil
	}
	if err != nil {
		return e.recordFailure(rootID, jobID, err)
	}

	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := e.ownState(ctx, tx, rootID, jobID); err != nil {
			return err
		}
		s, err := tx.LoadSeries(ctx, rootID)
		if err != nil {
			return err
		}
		res, err := e.materialize(ctx, tx, s, e.windowEnd(s))
		if err != nil {
			return err
		}
		st := res.state(rootID, jobID)
		return tx.PutSeriesState(ctx, &st)
	})
	if errors.Is(err, errSuperseded) {
		return nil
	}
	if err != nil {
		return e.recordFailure(rootID, jobID, err)
	}
	return nil
}

// ownState returns the root's state if jobID still owns it.
func (e *Engine) ownState(ctx context.Context, tx *store.Tx, rootID int64, jobID string) (calendar.SeriesState, error) {
	st, err := tx.GetSeriesState(ctx, rootID)
	if errors.Is(err, store.ErrNotFound) {
		return st, errSuperseded
	}
	if err != nil {
		return st, err
	}
	if st.JobID != jobID {
		return st, errSuperseded
	}
	return st, nil
}

// recordFailure marks the root failed, or cancelled when the job's context
// was cancelled, and returns cause.
func (e *Engine) recordFailure(rootID int64, jobID string, cause error) error {
	status, msg := calendar.StatusFailed, cause.Error()
	if errors.Is(cause, context.Canceled) {
		status, msg = calendar.StatusCancelled, ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		st, err := e.ownState(ctx, tx, rootID, jobID)
		if err != nil {
			return err
		}
		st.Status, st.Error = status, msg
		return tx.PutSeriesState(ctx, &st)
	})
	if err != nil && !errors.Is(err, errSuperseded) {
		e.log.Error("record job failure", "root", rootID, "job", jobID, "error", err)
	}
	return cause
}

// ExtendHorizons continues materialization of partial series: unbounded
// series whose horizon falls within horizon_days of now, and bounded
// series stopped by the occurrence cap. It returns how many series were
// extended (sync) or queued (async).
func (e *Engine) ExtendHorizons(ctx context.Context) (int, error) {
	states, err := e.store.ListSeriesStates(ctx, calendar.StatusPartial)
	if err != nil {
		return 0, fmt.Errorf("extend horizons: %w", err)
	}

	limit := e.clock.Now().Add(e.horizon)
	n := 0
	for _, st := range states {
		root, err := e.store.GetEvent(ctx, st.RootID)
		if err != nil {
			return n, classify(err, st.RootID)
		}
		rule, err := recurrence.Parse(root.RecurrenceRule)
		if err != nil {
			e.log.Warn("skip series with invalid rule", "root", root.ID, "error", err)
			continue
		}
		if !rule.Bounded() && !st.Horizon.Before(limit) {
			continue
		}

		if err := e.resettle(ctx, root.ID); err != nil {
			return n, err
		}
		n++
	}

	e.log.Info("horizons extended", "series", n, "mode", e.mode)
	return n, nil
}

// ResumeJobs re-settles series left pending or running by a previous
// process. Call it once at startup, before Run.
func (e *Engine) ResumeJobs(ctx context.Context) (int, error) {
	states, err := e.store.ListSeriesStates(ctx, calendar.StatusPending, calendar.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("resume jobs: %w", err)
	}
	for i, st := range states {
		if err := e.resettle(ctx, st.RootID); err != nil {
			return i, err
		}
	}
	if len(states) > 0 {
		e.log.Info("jobs resumed", "series", len(states), "mode", e.mode)
	}
	return len(states), nil
}

// resettle runs settle for rootID in its own transaction and enqueues the
// resulting job.
func (e *Engine) resettle(ctx context.Context, rootID int64) error {
	var pending *job
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		pending, err = e.settle(ctx, tx, rootID)
		return err
	})
	if err != nil {
		return classify(err, rootID)
	}
	e.enqueue([]*job{pending})
	return nil
}
