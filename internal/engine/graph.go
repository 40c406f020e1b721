package engine

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/recurrence"
	"github.com/roach88/cadence/internal/store"
)

// ReconcileResult reports what a rule reconciliation changed.
type ReconcileResult struct {
	Created int `json:"created"`
	Deleted int `json:"deleted"`
}

// handOver makes succ the root of s in place of the current root: it takes
// the remaining rule, the other occurrences, the exceptions and the series
// state. The old root is left in place for the caller to delete or detach.
func (e *Engine) handOver(ctx context.Context, tx *store.Tx, s *calendar.Series, succ calendar.Occurrence) (calendar.Event, error) {
	rule, err := e.continuation(s.Root.Rule, s.Root.Anchor())
	if err != nil {
		return calendar.Event{}, err
	}

	nr := succ.Event
	nr.ParentID = 0
	nr.IsRecurring = true
	nr.RecurrenceRule = rule.String()
	nr.SeriesStart = e.ruleInstant(s.Root.Event, succ.Event)
	nr.OccurrenceDate = ""
	if err := tx.UpdateEvent(ctx, &nr); err != nil {
		return calendar.Event{}, err
	}

	var others []int64
	for _, c := range s.Children {
		if c.ID != succ.ID {
			others = append(others, c.ID)
		}
	}
	if err := tx.SetParent(ctx, nr.ID, others); err != nil {
		return calendar.Event{}, err
	}
	if err := tx.MoveExceptions(ctx, s.Root.ID, nr.ID, time.Time{}); err != nil {
		return calendar.Event{}, err
	}
	if err := e.moveState(ctx, tx, s.Root.ID, nr.ID); err != nil {
		return calendar.Event{}, err
	}
	return nr, nil
}

// moveState copies the series state of from onto to and drops it from from.
func (e *Engine) moveState(ctx context.Context, tx *store.Tx, from, to int64) error {
	st, err := tx.GetSeriesState(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	st.RootID = to
	if err := tx.PutSeriesState(ctx, &st); err != nil {
		return err
	}
	return tx.DeleteSeriesState(ctx, from)
}

// split cuts s at the occurrence childID. The occurrence becomes the root of
// a new series carrying the remaining rule and every later occurrence; the
// old root's rule is truncated to end before it. The returned tail holds
// the re-pointed occurrences with their bumped versions.
func (e *Engine) split(ctx context.Context, tx *store.Tx, s *calendar.Series, childID int64) (calendar.Event, []calendar.Event, error) {
	child, ok := s.Child(childID)
	if !ok {
		return calendar.Event{}, nil, NewConflictError(childID, nil)
	}

	cont, err := e.continuation(s.Root.Rule, s.Root.Anchor())
	if err != nil {
		return calendar.Event{}, nil, err
	}
	instant := e.ruleInstant(s.Root.Event, child.Event)
	cut := instant
	if child.Start.Before(cut) {
		cut = child.Start
	}

	root := s.Root.Event
	root.RecurrenceRule = s.Root.Rule.EndingBefore(cut).String()
	if err := tx.UpdateEvent(ctx, &root); err != nil {
		return calendar.Event{}, nil, err
	}

	nr := child.Event
	nr.ParentID = 0
	nr.IsRecurring = true
	nr.RecurrenceRule = cont.String()
	nr.SeriesStart = instant
	nr.OccurrenceDate = ""
	if err := tx.UpdateEvent(ctx, &nr); err != nil {
		return calendar.Event{}, nil, err
	}

	var tail []calendar.Event
	var ids []int64
	for _, c := range s.After(child.Start) {
		if c.ID == child.ID {
			continue
		}
		ev := c.Event
		ev.ParentID = nr.ID
		ev.Version++
		tail = append(tail, ev)
		ids = append(ids, ev.ID)
	}
	if err := tx.SetParent(ctx, nr.ID, ids); err != nil {
		return calendar.Event{}, nil, err
	}
	if err := tx.MoveExceptions(ctx, root.ID, nr.ID, cut); err != nil {
		return calendar.Event{}, nil, err
	}

	st, err := tx.GetSeriesState(ctx, root.ID)
	switch {
	case err == nil:
		st.RootID = nr.ID
		if err := tx.PutSeriesState(ctx, &st); err != nil {
			return calendar.Event{}, nil, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return calendar.Event{}, nil, err
	}
	return nr, tail, nil
}

// Promote turns the occurrence id into the root of a new series made of
// itself and every later occurrence. The original series ends before it.
func (e *Engine) Promote(ctx context.Context, id int64) (calendar.View, error) {
	pre, err := e.store.GetEvent(ctx, id)
	if err != nil {
		return calendar.View{}, classify(err, id)
	}
	if !pre.IsOccurrence() {
		return calendar.View{}, NewValidationError("id", "only an occurrence can be promoted")
	}
	if err := e.cancelJob(ctx, pre.ParentID); err != nil {
		return calendar.View{}, err
	}

	var nr calendar.Event
	var pending []*job
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		pending = nil
		_, s, err := e.lockTarget(ctx, tx, pre, pre.ParentID)
		if err != nil {
			return err
		}
		if nr, _, err = e.split(ctx, tx, s, id); err != nil {
			return err
		}
		for _, rootID := range []int64{s.Root.ID, nr.ID} {
			j, err := e.settle(ctx, tx, rootID)
			if err != nil {
				return err
			}
			pending = append(pending, j)
		}
		return nil
	})
	if err != nil {
		return calendar.View{}, classify(err, id)
	}
	e.enqueue(pending)

	e.log.Info("occurrence promoted", "event", id, "old_root", pre.ParentID)
	return e.GetEvent(ctx, nr.ID)
}

// ReconcileRule sets the rule of the series rootID and brings its
// occurrences in line: occurrences not at an instant the new rule produces
// are deleted and missing ones are created. An occurrence moved off its
// instant by a single edit is replaced by a fresh one at the instant.
func (e *Engine) ReconcileRule(ctx context.Context, rootID int64, rule string) (ReconcileResult, error) {
	if rule == "" {
		return ReconcileResult{}, NewValidationError("recurrence_rule", "is required")
	}
	canon, _, err := canonicalRule(rule)
	if err != nil {
		return ReconcileResult{}, err
	}
	if err := e.cancelJob(ctx, rootID); err != nil {
		return ReconcileResult{}, err
	}

	var res ReconcileResult
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		s, err := tx.LoadSeries(ctx, rootID)
		if errors.Is(err, store.ErrNotRoot) {
			return NewValidationError("id", "event is not a series root")
		}
		if err != nil {
			return err
		}
		if s.Root.Rule == nil {
			return NewValidationError("id", "event is not a series root")
		}
		if s.Root.Kind == calendar.OutOfOffice {
			return NewValidationError("recurrence_rule", "out-of-office events cannot recur")
		}
		if canon != s.Root.RecurrenceRule {
			root := s.Root.Event
			root.RecurrenceRule = canon
			if err := tx.UpdateEvent(ctx, &root); err != nil {
				return err
			}
		}
		res, err = e.reconcile(ctx, tx, rootID)
		return err
	})
	if err != nil {
		return ReconcileResult{}, classify(err, rootID)
	}

	e.log.Info("series reconciled",
		"root", rootID,
		"rule", canon,
		"created", res.Created,
		"deleted", res.Deleted,
	)
	return res, nil
}

// reconcile diffs the stored occurrences of rootID against its rule and
// writes the resulting series state. The window covers the horizon and
// every existing occurrence.
func (e *Engine) reconcile(ctx context.Context, tx *store.Tx, rootID int64) (ReconcileResult, error) {
	s, err := tx.LoadSeries(ctx, rootID)
	if err != nil {
		return ReconcileResult{}, err
	}
	seq, err := s.Root.Rule.Sequence(s.Root.Anchor().In(e.loc))
	if err != nil {
		return ReconcileResult{}, err
	}

	end := e.windowEnd(s)
	limit := e.maxOccurrences + len(s.Children) + len(s.Exceptions)
	wanted := make(map[int64]bool)
	it := seq.Iterator()
	it.Next() // the root's own instant
	for len(wanted) < limit {
		t, ok := it.Next()
		if !ok || (!end.IsZero() && t.After(end)) {
			break
		}
		wanted[t.Unix()] = true
	}

	var keep []calendar.Event
	var stale []int64
	for _, c := range s.Children {
		if wanted[c.Start.Unix()] {
			keep = append(keep, c.Event)
			continue
		}
		stale = append(stale, c.ID)
	}
	if err := tx.DeleteEvents(ctx, stale); err != nil {
		return ReconcileResult{}, err
	}

	rest, err := calendar.NewSeries(s.Root.Event, keep, s.Exceptions)
	if err != nil {
		return ReconcileResult{}, err
	}
	r, err := e.materialize(ctx, tx, rest, end)
	if err != nil {
		return ReconcileResult{}, err
	}
	st := r.state(rootID, "")
	if err := tx.PutSeriesState(ctx, &st); err != nil {
		return ReconcileResult{}, err
	}
	return ReconcileResult{Created: len(r.Created), Deleted: len(stale)}, nil
}

// shiftExceptions moves every exception of rootID the way the root moved
// from orig to moved.
func (e *Engine) shiftExceptions(ctx context.Context, tx *store.Tx, rootID int64, orig, moved time.Time) error {
	exceptions, err := tx.Exceptions(ctx, rootID)
	if err != nil || len(exceptions) == 0 {
		return err
	}
	if err := tx.ClearExceptions(ctx, rootID); err != nil {
		return err
	}
	for _, ex := range exceptions {
		if err := tx.AddException(ctx, rootID, shiftLike(ex, orig, moved, e.loc)); err != nil {
			return err
		}
	}
	return nil
}

// moveUntil shifts the UNTIL of rule the way the series start moved from
// from to to, so the rule still produces the shifted occurrences. A
// date-only UNTIL moves by whole days.
func (e *Engine) moveUntil(rule string, from, to time.Time) (string, error) {
	r, err := recurrence.Parse(rule)
	if err != nil {
		return "", NewInvalidRuleError(err)
	}
	until, ok := r.UntilIn(e.loc)
	if !ok {
		return rule, nil
	}

	moved := shiftLike(until, from, to, e.loc)
	switch r.UntilForm {
	case recurrence.UntilUTC:
		r.Until = moved.UTC()
	case recurrence.UntilFloating:
		r.Until = time.Date(moved.Year(), moved.Month(), moved.Day(), moved.Hour(), moved.Minute(), moved.Second(), 0, time.UTC)
	case recurrence.UntilDate:
		days := int(civil(to.In(e.loc)).Sub(civil(from.In(e.loc))) / (24 * time.Hour))
		r.Until = r.Until.AddDate(0, 0, days)
	}
	return r.String(), nil
}

// shiftLike moves t the way from moved to to: by the same number of
// calendar days and the same change of wall-clock time in loc. Across a
// DST change this keeps wall-clock times where a fixed duration would not.
func shiftLike(t, from, to time.Time, loc *time.Location) time.Time {
	f, g, c := from.In(loc), to.In(loc), t.In(loc)
	days := int(civil(g).Sub(civil(f)) / (24 * time.Hour))
	clock := wallSeconds(g) - wallSeconds(f)
	return time.Date(c.Year(), c.Month(), c.Day()+days, c.Hour(), c.Minute(), c.Second()+clock, 0, loc)
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func wallSeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
