package engine

import (
	"context"
	"errors"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/recurrence"
	"github.com/roach88/cadence/internal/store"
)

// CreateSeries stores the event described by d. With a recurrence rule the
// event becomes a series root and its occurrences are materialized inline
// (sync mode) or by the background worker (async mode).
func (e *Engine) CreateSeries(ctx context.Context, d calendar.Draft) (calendar.View, error) {
	ev := d.Event()
	if err := e.canonicalize(&ev); err != nil {
		return calendar.View{}, err
	}
	if err := e.prepare(ctx, &ev); err != nil {
		return calendar.View{}, err
	}

	var pending *job
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		ev.ID, ev.Version = 0, 0
		if err := tx.InsertEvent(ctx, &ev); err != nil {
			return err
		}
		if !ev.IsRoot() {
			return nil
		}
		var err error
		pending, err = e.settle(ctx, tx, ev.ID)
		return err
	})
	if err != nil {
		return calendar.View{}, classify(err, ev.ID)
	}
	e.enqueue([]*job{pending})

	e.log.Info("event created",
		"event", ev.ID,
		"kind", ev.Kind,
		"recurring", ev.IsRecurring,
		"rule", ev.RecurrenceRule,
	)
	return e.view(ctx, ev)
}

// canonicalize replaces a root's rule text with its canonical form.
func (e *Engine) canonicalize(ev *calendar.Event) error {
	if ev.RecurrenceRule == "" {
		return nil
	}
	canon, _, err := canonicalRule(ev.RecurrenceRule)
	if err != nil {
		return err
	}
	ev.RecurrenceRule = canon
	return nil
}

// canonicalRule parses s and returns its canonical text.
func canonicalRule(s string) (string, *recurrence.Rule, error) {
	r, err := recurrence.Parse(s)
	if err != nil {
		return "", nil, NewInvalidRuleError(err)
	}
	return r.String(), r, nil
}

// prepare normalizes and validates ev, then checks its references.
func (e *Engine) prepare(ctx context.Context, ev *calendar.Event) error {
	calendar.Normalize(ev)
	if err := calendar.Validate(ev); err != nil {
		return classify(err, ev.ID)
	}
	return e.checkReferences(ctx, ev)
}

// write validates ev and stores it, replacing its service lines when
// services is true.
func (e *Engine) write(ctx context.Context, tx *store.Tx, ev *calendar.Event, services bool) error {
	if err := e.prepare(ctx, ev); err != nil {
		return err
	}
	if err := tx.UpdateEvent(ctx, ev); err != nil {
		return err
	}
	if !services {
		return nil
	}
	lines, err := tx.ReplaceServices(ctx, ev.ID, ev.Services)
	if err != nil {
		return err
	}
	ev.Services = lines
	return nil
}

// seriesOf returns the root of the series ev belongs to, or 0 for a
// standalone event.
func seriesOf(ev calendar.Event) int64 {
	if ev.ParentID != 0 {
		return ev.ParentID
	}
	if ev.IsRecurring {
		return ev.ID
	}
	return 0
}

// lockTarget re-reads the event pre under lock. For series members it
// locks the root and its occurrences first and returns the series; the
// target must still belong to rootID.
func (e *Engine) lockTarget(ctx context.Context, tx *store.Tx, pre calendar.Event, rootID int64) (calendar.Event, *calendar.Series, error) {
	if rootID == 0 {
		cur, err := tx.LockEvent(ctx, pre.ID)
		if err != nil {
			return calendar.Event{}, nil, err
		}
		if cur.ParentID != 0 || cur.IsRecurring {
			return calendar.Event{}, nil, NewConflictError(pre.ID, nil)
		}
		return cur, nil, nil
	}

	s, err := tx.LoadSeries(ctx, rootID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotRoot) {
		if _, gone := tx.GetEvent(ctx, pre.ID); errors.Is(gone, store.ErrNotFound) {
			return calendar.Event{}, nil, gone
		}
		return calendar.Event{}, nil, NewConflictError(pre.ID, err)
	}
	if err != nil {
		return calendar.Event{}, nil, err
	}
	if s.Root.Rule == nil {
		return calendar.Event{}, nil, NewConflictError(pre.ID, nil)
	}

	if pre.ID == rootID {
		return s.Root.Event, s, nil
	}
	child, ok := s.Child(pre.ID)
	if !ok {
		if _, gone := tx.GetEvent(ctx, pre.ID); errors.Is(gone, store.ErrNotFound) {
			return calendar.Event{}, nil, gone
		}
		return calendar.Event{}, nil, NewConflictError(pre.ID, nil)
	}
	return child.Event, s, nil
}

// GetEvent returns the view of one event.
func (e *Engine) GetEvent(ctx context.Context, id int64) (calendar.View, error) {
	ev, err := e.store.GetEvent(ctx, id)
	if err != nil {
		return calendar.View{}, classify(err, id)
	}
	return e.view(ctx, ev)
}
