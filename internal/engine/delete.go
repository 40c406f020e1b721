package engine

import (
	"context"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/store"
)

// DeleteResult reports what a delete removed or restructured.
type DeleteResult struct {
	// Deleted lists the removed events.
	Deleted []int64 `json:"deleted"`

	// Detached lists occurrences that became standalone events.
	Detached []int64 `json:"detached,omitempty"`

	// PromotedID is the occurrence that took over a deleted root, or 0.
	PromotedID int64 `json:"promoted_id,omitempty"`
}

// DeleteEvent removes event id under scope.
//
//   - single, occurrence: only the target goes. A deleted occurrence is
//     recorded as an exception; a deleted root hands the series over to its
//     successor.
//   - series: the target and every later member go. The series ends before
//     the target; occurrences of a deleted root that start before it are
//     kept as standalone events.
//   - all: the whole series goes.
func (e *Engine) DeleteEvent(ctx context.Context, id int64, scope DeleteScope) (DeleteResult, error) {
	switch scope {
	case DeleteSingle, DeleteOccurrence, DeleteSeries, DeleteAll:
	default:
		return DeleteResult{}, NewInvalidScopeError(string(scope), deleteScopes)
	}

	pre, err := e.store.GetEvent(ctx, id)
	if err != nil {
		return DeleteResult{}, classify(err, id)
	}
	rootID := seriesOf(pre)
	if err := e.cancelJob(ctx, rootID); err != nil {
		return DeleteResult{}, err
	}

	var res DeleteResult
	var pending []*job
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		res, pending = DeleteResult{}, nil
		cur, s, err := e.lockTarget(ctx, tx, pre, rootID)
		if err != nil {
			return err
		}

		var roots []int64
		switch {
		case s == nil:
			res.Deleted = []int64{cur.ID}
			err = tx.DeleteEvents(ctx, res.Deleted)
		case scope == DeleteAll:
			res.Deleted = ids(s.Members())
			err = tx.DeleteEvents(ctx, childrenFirst(res.Deleted))
		case scope == DeleteSeries:
			roots, err = e.deleteFollowing(ctx, tx, cur, s, &res)
		default:
			roots, err = e.deleteOne(ctx, tx, cur, s, &res)
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
		return DeleteResult{}, classify(err, id)
	}
	e.enqueue(pending)

	e.log.Info("event deleted",
		"event", id,
		"scope", scope,
		"series", rootID,
		"deleted", len(res.Deleted),
		"detached", len(res.Detached),
		"promoted", res.PromotedID,
	)
	return res, nil
}

// deleteOne removes the single member cur of s.
func (e *Engine) deleteOne(ctx context.Context, tx *store.Tx, cur calendar.Event, s *calendar.Series, res *DeleteResult) ([]int64, error) {
	res.Deleted = []int64{cur.ID}

	if cur.ID != s.Root.ID {
		if err := tx.DeleteEvents(ctx, res.Deleted); err != nil {
			return nil, err
		}
		if err := tx.AddException(ctx, s.Root.ID, e.ruleInstant(s.Root.Event, cur)); err != nil {
			return nil, err
		}
		return []int64{s.Root.ID}, nil
	}

	succ, ok := s.Successor()
	if !ok {
		return nil, tx.DeleteEvents(ctx, res.Deleted)
	}
	nr, err := e.handOver(ctx, tx, s, succ)
	if err != nil {
		return nil, err
	}
	if err := tx.DeleteEvents(ctx, res.Deleted); err != nil {
		return nil, err
	}
	res.PromotedID = nr.ID
	return []int64{nr.ID}, nil
}

// deleteFollowing removes cur and every later member of s.
func (e *Engine) deleteFollowing(ctx context.Context, tx *store.Tx, cur calendar.Event, s *calendar.Series, res *DeleteResult) ([]int64, error) {
	if cur.ID == s.Root.ID {
		for _, c := range s.NotAfter(s.Root.Start) {
			ev := c.Event
			ev.Detach()
			if err := tx.UpdateEvent(ctx, &ev); err != nil {
				return nil, err
			}
			res.Detached = append(res.Detached, ev.ID)
		}
		for _, c := range s.After(s.Root.Start) {
			res.Deleted = append(res.Deleted, c.ID)
		}
		res.Deleted = append(res.Deleted, s.Root.ID)
		return nil, tx.DeleteEvents(ctx, res.Deleted)
	}

	cut := e.ruleInstant(s.Root.Event, cur)
	if cur.Start.Before(cut) {
		cut = cur.Start
	}
	res.Deleted = append(res.Deleted, cur.ID)
	for _, c := range s.After(cur.Start) {
		if c.ID != cur.ID {
			res.Deleted = append(res.Deleted, c.ID)
		}
	}
	if err := tx.DeleteEvents(ctx, res.Deleted); err != nil {
		return nil, err
	}

	root := s.Root.Event
	root.RecurrenceRule = s.Root.Rule.EndingBefore(cut).String()
	if err := tx.UpdateEvent(ctx, &root); err != nil {
		return nil, err
	}
	return []int64{root.ID}, nil
}

func ids(events []calendar.Event) []int64 {
	out := make([]int64, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

// childrenFirst moves the first id, a root, to the end so its occurrences
// are deleted before it.
func childrenFirst(members []int64) []int64 {
	if len(members) < 2 {
		return members
	}
	out := append([]int64(nil), members[1:]...)
	return append(out, members[0])
}
