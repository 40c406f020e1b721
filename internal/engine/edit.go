package engine

import (
	"context"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/store"
)

// EditEvent applies patch to event id.
//
//   - single: the target is updated in place and keeps its series membership.
//   - occurrence: the target leaves its series first. A detached root hands
//     the series over to its successor.
//   - series: the target and every later occurrence are updated. An
//     occurrence target first splits off a new series of its own.
//
// The recurrence rule can only change with series scope.
func (e *Engine) EditEvent(ctx context.Context, id int64, scope EditScope, patch calendar.Patch) (calendar.View, error) {
	switch scope {
	case EditSingle, EditOccurrence, EditSeries:
	default:
		return calendar.View{}, NewInvalidScopeError(string(scope), editScopes)
	}

	pre, err := e.store.GetEvent(ctx, id)
	if err != nil {
		return calendar.View{}, classify(err, id)
	}
	if err := e.checkRulePatch(pre, scope, patch); err != nil {
		return calendar.View{}, err
	}

	rootID := seriesOf(pre)
	restructures := scope != EditSingle || patch.RecurrenceRule.IsPresent()
	if restructures {
		if err := e.cancelJob(ctx, rootID); err != nil {
			return calendar.View{}, err
		}
	}

	var out calendar.Event
	var pending []*job
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		pending = nil
		cur, s, err := e.lockTarget(ctx, tx, pre, rootID)
		if err != nil {
			return err
		}

		var roots []int64
		switch scope {
		case EditSingle:
			out, err = e.editSingle(ctx, tx, cur, patch)
			if restructures && rootID != 0 {
				roots = []int64{rootID}
			}
		case EditOccurrence:
			out, roots, err = e.editOccurrence(ctx, tx, cur, s, patch)
		case EditSeries:
			out, roots, err = e.editSeries(ctx, tx, cur, s, patch)
		}
		if err != nil {
			return err
		}

		for _, r := range roots {
			j, err := e.settle(ctx, tx, r)
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

	e.log.Info("event edited",
		"event", id,
		"scope", scope,
		"series", rootID,
		"result", out.ID,
	)
	return e.GetEvent(ctx, out.ID)
}

// checkRulePatch rejects rule changes outside series scope. Repeating the
// current rule is accepted, as is clearing the rule of an occurrence.
func (e *Engine) checkRulePatch(pre calendar.Event, scope EditScope, patch calendar.Patch) error {
	rule, ok := patch.RecurrenceRule.Get()
	if !ok || rule == "" {
		if ok && scope != EditSeries && pre.IsRoot() {
			return NewValidationError("recurrence_rule", "the rule can only change with series scope")
		}
		return nil
	}
	canon, _, err := canonicalRule(rule)
	if err != nil {
		return err
	}
	if scope == EditSeries || canon == pre.RecurrenceRule {
		return nil
	}
	return NewValidationError("recurrence_rule", "the rule can only change with series scope")
}

func (e *Engine) editSingle(ctx context.Context, tx *store.Tx, cur calendar.Event, patch calendar.Patch) (calendar.Event, error) {
	ev := cur
	patch.Apply(&ev)
	if err := e.write(ctx, tx, &ev, patch.Services.IsPresent()); err != nil {
		return calendar.Event{}, err
	}
	return ev, nil
}

// editOccurrence detaches cur from its series and updates it. It returns
// the roots that need settling.
func (e *Engine) editOccurrence(ctx context.Context, tx *store.Tx, cur calendar.Event, s *calendar.Series, patch calendar.Patch) (calendar.Event, []int64, error) {
	if s == nil {
		ev, err := e.editSingle(ctx, tx, cur, patch)
		return ev, nil, err
	}

	ev := cur
	var roots []int64
	if cur.ID == s.Root.ID {
		nr, ok, err := e.release(ctx, tx, s)
		if err != nil {
			return calendar.Event{}, nil, err
		}
		if ok {
			roots = append(roots, nr)
		}
	} else {
		if err := tx.AddException(ctx, s.Root.ID, e.ruleInstant(s.Root.Event, cur)); err != nil {
			return calendar.Event{}, nil, err
		}
		roots = append(roots, s.Root.ID)
	}

	ev.Detach()
	patch.Apply(&ev)
	if err := e.write(ctx, tx, &ev, patch.Services.IsPresent()); err != nil {
		return calendar.Event{}, nil, err
	}
	return ev, roots, nil
}

// release hands the series of root s over to its successor, or ends the
// series when there is none. It reports the new root.
func (e *Engine) release(ctx context.Context, tx *store.Tx, s *calendar.Series) (int64, bool, error) {
	succ, ok := s.Successor()
	if !ok {
		if err := tx.ClearExceptions(ctx, s.Root.ID); err != nil {
			return 0, false, err
		}
		return 0, false, tx.DeleteSeriesState(ctx, s.Root.ID)
	}
	nr, err := e.handOver(ctx, tx, s, succ)
	if err != nil {
		return 0, false, err
	}
	return nr.ID, true, nil
}

// editSeries updates cur and every later member of its series. It returns
// the roots that need settling.
func (e *Engine) editSeries(ctx context.Context, tx *store.Tx, cur calendar.Event, s *calendar.Series, patch calendar.Patch) (calendar.Event, []int64, error) {
	if s == nil {
		return e.recur(ctx, tx, cur, patch)
	}

	var roots []int64
	target := cur
	var tail []calendar.Event
	if cur.ID == s.Root.ID {
		for _, c := range s.Children {
			tail = append(tail, c.Event)
		}
	} else {
		nr, rest, err := e.split(ctx, tx, s, cur.ID)
		if err != nil {
			return calendar.Event{}, nil, err
		}
		roots = append(roots, s.Root.ID)
		target, tail = nr, rest
	}

	orig := target
	ev := target
	patch.Apply(&ev)

	reconcile := false
	if rule, ok := patch.RecurrenceRule.Get(); ok {
		if rule == "" {
			if err := e.endSeries(ctx, tx, ev.ID, tail); err != nil {
				return calendar.Event{}, nil, err
			}
			tail = nil
			ev.Detach()
		} else {
			canon, _, err := canonicalRule(rule)
			if err != nil {
				return calendar.Event{}, nil, err
			}
			reconcile = canon != ev.RecurrenceRule
			ev.RecurrenceRule = canon
		}
	}

	startMoved := !ev.Start.Equal(orig.Start)
	endMoved := !ev.End.Equal(orig.End)
	if ev.IsRoot() && startMoved {
		ev.SeriesStart = shiftLike(orig.Anchor(), orig.Start, ev.Start, e.loc)
		if !patch.RecurrenceRule.IsPresent() {
			rule, err := e.moveUntil(ev.RecurrenceRule, orig.Start, ev.Start)
			if err != nil {
				return calendar.Event{}, nil, err
			}
			ev.RecurrenceRule = rule
		}
	}

	services := patch.Services.IsPresent()
	if err := e.write(ctx, tx, &ev, services); err != nil {
		return calendar.Event{}, nil, err
	}

	for i := range tail {
		c := tail[i]
		instant := e.ruleInstant(orig, c)
		patch.ApplyContent(&c)
		if startMoved {
			c.Start = shiftLike(c.Start, orig.Start, ev.Start, e.loc)
			c.OccurrenceDate = e.occurrenceKey(shiftLike(instant, orig.Start, ev.Start, e.loc))
		}
		if endMoved {
			c.End = shiftLike(c.End, orig.End, ev.End, e.loc)
		}
		if err := e.write(ctx, tx, &c, services); err != nil {
			return calendar.Event{}, nil, err
		}
	}

	if !ev.IsRoot() {
		return ev, roots, nil
	}
	if startMoved {
		if err := e.shiftExceptions(ctx, tx, ev.ID, orig.Start, ev.Start); err != nil {
			return calendar.Event{}, nil, err
		}
	}
	if reconcile {
		if _, err := e.reconcile(ctx, tx, ev.ID); err != nil {
			return calendar.Event{}, nil, err
		}
	}
	return ev, append(roots, ev.ID), nil
}

// endSeries removes recurrence from root: its occurrences are deleted and
// its exceptions and state dropped.
func (e *Engine) endSeries(ctx context.Context, tx *store.Tx, rootID int64, occurrences []calendar.Event) error {
	ids := make([]int64, len(occurrences))
	for i, c := range occurrences {
		ids[i] = c.ID
	}
	if err := tx.DeleteEvents(ctx, ids); err != nil {
		return err
	}
	if err := tx.ClearExceptions(ctx, rootID); err != nil {
		return err
	}
	return tx.DeleteSeriesState(ctx, rootID)
}

// recur applies a series edit to a standalone event. A non-empty rule turns
// it into a series root.
func (e *Engine) recur(ctx context.Context, tx *store.Tx, cur calendar.Event, patch calendar.Patch) (calendar.Event, []int64, error) {
	ev := cur
	patch.Apply(&ev)
	if rule, ok := patch.RecurrenceRule.Get(); ok && rule != "" {
		canon, _, err := canonicalRule(rule)
		if err != nil {
			return calendar.Event{}, nil, err
		}
		ev.IsRecurring, ev.RecurrenceRule = true, canon
		ev.SeriesStart = ev.Start
	}
	if err := e.write(ctx, tx, &ev, patch.Services.IsPresent()); err != nil {
		return calendar.Event{}, nil, err
	}
	if !ev.IsRoot() {
		return ev, nil, nil
	}
	return ev, []int64{ev.ID}, nil
}
