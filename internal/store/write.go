package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/cadence/internal/calendar"
)

// InsertEvent inserts e and its service lines, assigning e.ID, version 1,
// the stamps and the line ids. A non-zero ParentID must name a root.
func (t *Tx) InsertEvent(ctx context.Context, e *calendar.Event) error {
	if err := t.checkParent(ctx, e.ParentID, 0); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	now := t.s.stamp()
	args := append(eventArgs(e), int64(1), now, now)
	row := t.tx.QueryRowContext(ctx, t.s.rebind(`
		INSERT INTO events
		(kind, start_at, end_at, all_day, clinician_id, location_id, client_id, status_id,
		 title, notes, appointment_total, cancel_appointments, notify_clients,
		 is_recurring, recurrence_rule, parent_id, occurrence_date, series_start,
		 version, created_at, updated_at)
		VALUES (`+placeholders(len(args))+`)
		RETURNING id
	`), args...)
	if err := row.Scan(&e.ID); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	e.Version = 1
	e.CreatedAt = t.s.instant(now)
	e.UpdatedAt = e.CreatedAt

	lines, err := t.insertServices(ctx, e.ID, e.Services)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.Services = lines
	return nil
}

// UpdateEvent writes every column of e except its service lines, bumping
// the version. It fails with ErrConflict if the stored version is not
// e.Version.
func (t *Tx) UpdateEvent(ctx context.Context, e *calendar.Event) error {
	if err := t.checkParent(ctx, e.ParentID, e.ID); err != nil {
		return fmt.Errorf("update event %d: %w", e.ID, err)
	}

	now := t.s.stamp()
	args := append(eventArgs(e), now, e.ID, e.Version)
	res, err := t.tx.ExecContext(ctx, t.s.rebind(`
		UPDATE events SET
			kind = ?, start_at = ?, end_at = ?, all_day = ?,
			clinician_id = ?, location_id = ?, client_id = ?, status_id = ?,
			title = ?, notes = ?, appointment_total = ?, cancel_appointments = ?, notify_clients = ?,
			is_recurring = ?, recurrence_rule = ?, parent_id = ?, occurrence_date = ?, series_start = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`), args...)
	if err != nil {
		return fmt.Errorf("update event %d: %w", e.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event %d: %w", e.ID, err)
	}
	if n == 0 {
		if _, err := t.GetEvent(ctx, e.ID); err != nil {
			return fmt.Errorf("update event %d: %w", e.ID, err)
		}
		return fmt.Errorf("update event %d: version %d is stale: %w", e.ID, e.Version, ErrConflict)
	}

	e.Version++
	e.UpdatedAt = t.s.instant(now)
	return nil
}

// ReplaceServices swaps the service lines of an event for lines, which are
// returned with their new ids.
func (t *Tx) ReplaceServices(ctx context.Context, eventID int64, lines []calendar.ServiceLine) ([]calendar.ServiceLine, error) {
	if _, err := t.tx.ExecContext(ctx, t.s.rebind(`
		DELETE FROM event_service_lines WHERE event_id = ?
	`), eventID); err != nil {
		return nil, fmt.Errorf("replace services of %d: %w", eventID, err)
	}
	out, err := t.insertServices(ctx, eventID, lines)
	if err != nil {
		return nil, fmt.Errorf("replace services of %d: %w", eventID, err)
	}
	return out, nil
}

func (t *Tx) insertServices(ctx context.Context, eventID int64, lines []calendar.ServiceLine) ([]calendar.ServiceLine, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	out := make([]calendar.ServiceLine, len(lines))
	for i, l := range lines {
		mods, err := marshalModifiers(l.Modifiers)
		if err != nil {
			return nil, err
		}
		row := t.tx.QueryRowContext(ctx, t.s.rebind(`
			INSERT INTO event_service_lines (event_id, position, service_id, fee, modifiers)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id
		`), eventID, i, l.ServiceID, l.Fee, mods)

		out[i] = calendar.ServiceLine{
			ServiceID: l.ServiceID,
			Fee:       l.Fee,
			Modifiers: append([]string(nil), l.Modifiers...),
		}
		if err := row.Scan(&out[i].ID); err != nil {
			return nil, fmt.Errorf("insert service line: %w", err)
		}
	}
	return out, nil
}

// SetParent points the given events at parentID, which must be a root
// other than the events themselves.
func (t *Tx) SetParent(ctx context.Context, parentID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if id == parentID {
			return fmt.Errorf("set parent: event %d cannot be its own parent", id)
		}
	}
	if err := t.checkParent(ctx, parentID, 0); err != nil {
		return fmt.Errorf("set parent: %w", err)
	}

	for len(ids) > 0 {
		n := min(len(ids), serviceBatch)
		batch := ids[:n]
		ids = ids[n:]

		args := append([]any{parentID, t.s.stamp()}, int64Args(batch)...)
		if _, err := t.tx.ExecContext(ctx, t.s.rebind(`
			UPDATE events
			SET parent_id = ?, version = version + 1, updated_at = ?
			WHERE id IN (`+placeholders(len(batch))+`)
		`), args...); err != nil {
			return fmt.Errorf("set parent: %w", err)
		}
	}
	return nil
}

// DeleteEvents deletes the given events with their service lines,
// exceptions and series state. Deleting a root whose occurrences are not
// also deleted fails on the parent_id foreign key.
func (t *Tx) DeleteEvents(ctx context.Context, ids []int64) error {
	for len(ids) > 0 {
		n := min(len(ids), serviceBatch)
		batch := ids[:n]
		ids = ids[n:]
		in := placeholders(len(batch))
		args := int64Args(batch)

		statements := []string{
			`DELETE FROM event_service_lines WHERE event_id IN (` + in + `)`,
			`DELETE FROM series_exceptions WHERE root_id IN (` + in + `)`,
			`DELETE FROM series_state WHERE root_id IN (` + in + `)`,
			`DELETE FROM events WHERE id IN (` + in + `)`,
		}
		for _, stmt := range statements {
			if _, err := t.tx.ExecContext(ctx, t.s.rebind(stmt), args...); err != nil {
				return fmt.Errorf("delete events: %w", err)
			}
		}
	}
	return nil
}

// checkParent verifies that parentID, when set, names an existing event
// with no parent of its own. self is the event being written, or 0.
func (t *Tx) checkParent(ctx context.Context, parentID, self int64) error {
	if parentID == 0 {
		return nil
	}
	if parentID == self {
		return fmt.Errorf("event %d cannot be its own parent", self)
	}

	var grandparent sql.NullInt64
	err := t.tx.QueryRowContext(ctx, t.s.rebind(`
		SELECT parent_id FROM events WHERE id = ?
	`), parentID).Scan(&grandparent)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("parent %d: %w", parentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("parent %d: %w", parentID, err)
	}
	if grandparent.Valid {
		return fmt.Errorf("parent %d belongs to %d: %w", parentID, grandparent.Int64, ErrNotRoot)
	}
	return nil
}

// AddException records that instant must not be materialized again for
// rootID. Recording the same instant twice is a no-op.
func (t *Tx) AddException(ctx context.Context, rootID int64, instant time.Time) error {
	if _, err := t.tx.ExecContext(ctx, t.s.rebind(`
		INSERT INTO series_exceptions (root_id, instant)
		VALUES (?, ?)
		ON CONFLICT (root_id, instant) DO NOTHING
	`), rootID, instant.Unix()); err != nil {
		return fmt.Errorf("add exception: %w", err)
	}
	return nil
}

// MoveExceptions re-homes the exceptions of from that are later than after
// onto to.
func (t *Tx) MoveExceptions(ctx context.Context, from, to int64, after time.Time) error {
	if _, err := t.tx.ExecContext(ctx, t.s.rebind(`
		INSERT INTO series_exceptions (root_id, instant)
		SELECT CAST(? AS BIGINT), instant FROM series_exceptions
		WHERE root_id = ? AND instant > ?
		ON CONFLICT (root_id, instant) DO NOTHING
	`), to, from, after.Unix()); err != nil {
		return fmt.Errorf("move exceptions: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.s.rebind(`
		DELETE FROM series_exceptions WHERE root_id = ? AND instant > ?
	`), from, after.Unix()); err != nil {
		return fmt.Errorf("move exceptions: %w", err)
	}
	return nil
}

// ClearExceptions removes every exception of a root.
func (t *Tx) ClearExceptions(ctx context.Context, rootID int64) error {
	if _, err := t.tx.ExecContext(ctx, t.s.rebind(`
		DELETE FROM series_exceptions WHERE root_id = ?
	`), rootID); err != nil {
		return fmt.Errorf("clear exceptions: %w", err)
	}
	return nil
}

// PutSeriesState inserts or replaces the state of a root and stamps it.
func (t *Tx) PutSeriesState(ctx context.Context, st *calendar.SeriesState) error {
	return t.s.putSeriesState(ctx, t.tx, st)
}

// PutSeriesState is PutSeriesState outside a caller's transaction.
func (s *Store) PutSeriesState(ctx context.Context, st *calendar.SeriesState) error {
	return s.putSeriesState(ctx, s.db, st)
}

func (s *Store) putSeriesState(ctx context.Context, q querier, st *calendar.SeriesState) error {
	var horizon sql.NullInt64
	if !st.Horizon.IsZero() {
		horizon = sql.NullInt64{Int64: st.Horizon.Unix(), Valid: true}
	}
	now := s.stamp()
	if _, err := q.ExecContext(ctx, s.rebind(`
		INSERT INTO series_state (root_id, status, horizon_at, job_id, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (root_id) DO UPDATE SET
			status = excluded.status,
			horizon_at = excluded.horizon_at,
			job_id = excluded.job_id,
			error = excluded.error,
			updated_at = excluded.updated_at
	`), st.RootID, string(st.Status), horizon, st.JobID, st.Error, now); err != nil {
		return fmt.Errorf("put series state %d: %w", st.RootID, err)
	}
	st.UpdatedAt = s.instant(now)
	return nil
}

// DeleteSeriesState removes the state of a root, if any.
func (t *Tx) DeleteSeriesState(ctx context.Context, rootID int64) error {
	if _, err := t.tx.ExecContext(ctx, t.s.rebind(`
		DELETE FROM series_state WHERE root_id = ?
	`), rootID); err != nil {
		return fmt.Errorf("delete series state %d: %w", rootID, err)
	}
	return nil
}
