package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/queryir"
)

// serviceBatch bounds the number of ids bound into one IN list.
const serviceBatch = 500

// EventFilter selects events for ListEvents. Zero fields do not filter.
// The time range is half-open on start: From <= start < To.
type EventFilter struct {
	From time.Time
	To   time.Time

	ClinicianID int64
	LocationID  int64
	ParentID    int64

	// RootsOnly excludes materialized occurrences.
	RootsOnly bool

	Limit int
}

func (f EventFilter) query() queryir.Select {
	var preds []queryir.Predicate
	if !f.From.IsZero() || !f.To.IsZero() {
		r := queryir.Range{Field: "start_at"}
		if !f.From.IsZero() {
			r.From = queryir.Bound(f.From.Unix())
		}
		if !f.To.IsZero() {
			r.To = queryir.Bound(f.To.Unix())
		}
		preds = append(preds, r)
	}
	if f.ClinicianID != 0 {
		preds = append(preds, queryir.Equals{Field: "clinician_id", Value: f.ClinicianID})
	}
	if f.LocationID != 0 {
		preds = append(preds, queryir.Equals{Field: "location_id", Value: f.LocationID})
	}
	if f.ParentID != 0 {
		preds = append(preds, queryir.Equals{Field: "parent_id", Value: f.ParentID})
	}
	if f.RootsOnly {
		preds = append(preds, queryir.IsNull{Field: "parent_id"})
	}

	q := queryir.Select{
		From:    "events",
		Columns: eventColumns,
		OrderBy: []string{"start_at"},
		Limit:   f.Limit,
	}
	if len(preds) > 0 {
		q.Filter = queryir.And{Predicates: preds}
	}
	return q
}

// ListEvents returns the events matching f ordered by start, then id.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]calendar.Event, error) {
	events, err := s.selectEvents(ctx, s.db, f.query())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetEvent returns the event with the given id, service lines included.
func (s *Store) GetEvent(ctx context.Context, id int64) (calendar.Event, error) {
	return s.getEvent(ctx, s.db, id, false)
}

// GetEvent returns the event with the given id within the transaction.
func (t *Tx) GetEvent(ctx context.Context, id int64) (calendar.Event, error) {
	return t.s.getEvent(ctx, t.tx, id, false)
}

// LockEvent is GetEvent with a row lock on backends that support one.
func (t *Tx) LockEvent(ctx context.Context, id int64) (calendar.Event, error) {
	return t.s.getEvent(ctx, t.tx, id, true)
}

func (s *Store) getEvent(ctx context.Context, q querier, id int64, lock bool) (calendar.Event, error) {
	events, err := s.selectEvents(ctx, q, queryir.Select{
		From:      "events",
		Columns:   eventColumns,
		Filter:    queryir.Equals{Field: "id", Value: id},
		ForUpdate: lock,
	})
	if err != nil {
		return calendar.Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	if len(events) == 0 {
		return calendar.Event{}, fmt.Errorf("get event %d: %w", id, ErrNotFound)
	}
	return events[0], nil
}

// Children returns the occurrences of a root ordered by start, then id.
func (t *Tx) Children(ctx context.Context, rootID int64) ([]calendar.Event, error) {
	return t.s.children(ctx, t.tx, rootID, false)
}

func (s *Store) children(ctx context.Context, q querier, rootID int64, lock bool) ([]calendar.Event, error) {
	sel := queryir.Select{
		From:    "events",
		Columns: eventColumns,
		Filter:  queryir.Equals{Field: "parent_id", Value: rootID},
		OrderBy: []string{"start_at"},
	}
	if lock {
		// Rows are locked in id order.
		sel.OrderBy = nil
		sel.ForUpdate = true
	}
	events, err := s.selectEvents(ctx, q, sel)
	if err != nil {
		return nil, fmt.Errorf("children of %d: %w", rootID, err)
	}
	return events, nil
}

// LoadSeries locks a root and its occurrences and returns them with the
// root's exceptions. It fails with ErrNotRoot if id names an occurrence.
func (t *Tx) LoadSeries(ctx context.Context, rootID int64) (*calendar.Series, error) {
	return t.s.loadSeries(ctx, t.tx, rootID, true)
}

// LoadSeries reads a series outside any transaction.
func (s *Store) LoadSeries(ctx context.Context, rootID int64) (*calendar.Series, error) {
	return s.loadSeries(ctx, s.db, rootID, false)
}

func (s *Store) loadSeries(ctx context.Context, q querier, rootID int64, lock bool) (*calendar.Series, error) {
	root, err := s.getEvent(ctx, q, rootID, lock)
	if err != nil {
		return nil, err
	}
	if root.ParentID != 0 {
		return nil, fmt.Errorf("load series %d: %w", rootID, ErrNotRoot)
	}

	children, err := s.children(ctx, q, rootID, lock)
	if err != nil {
		return nil, err
	}

	exceptions, err := s.exceptions(ctx, q, rootID)
	if err != nil {
		return nil, err
	}

	series, err := calendar.NewSeries(root, children, exceptions)
	if err != nil {
		return nil, fmt.Errorf("load series %d: %w", rootID, err)
	}
	return series, nil
}

// Exceptions returns the excluded instants of a root in ascending order.
func (t *Tx) Exceptions(ctx context.Context, rootID int64) ([]time.Time, error) {
	return t.s.exceptions(ctx, t.tx, rootID)
}

func (s *Store) exceptions(ctx context.Context, q querier, rootID int64) ([]time.Time, error) {
	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT instant FROM series_exceptions
		WHERE root_id = ?
		ORDER BY instant ASC
	`), rootID)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var unix int64
		if err := rows.Scan(&unix); err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		out = append(out, s.instant(unix))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exceptions: %w", err)
	}
	return out, nil
}

// selectEvents compiles sel, runs it and attaches service lines.
func (s *Store) selectEvents(ctx context.Context, q querier, sel queryir.Select) ([]calendar.Event, error) {
	query, params, err := s.compiler.Compile(sel)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	events := []calendar.Event{}
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	// Close before the next query: SQLite has a single connection.
	rows.Close()

	if err := s.attachServices(ctx, q, events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) attachServices(ctx context.Context, q querier, events []calendar.Event) error {
	if len(events) == 0 {
		return nil
	}
	index := make(map[int64]int, len(events))
	ids := make([]int64, 0, len(events))
	for i, e := range events {
		if e.Kind != calendar.Appointment {
			continue
		}
		index[e.ID] = i
		ids = append(ids, e.ID)
	}

	for len(ids) > 0 {
		n := min(len(ids), serviceBatch)
		batch := ids[:n]
		ids = ids[n:]

		rows, err := q.QueryContext(ctx, s.rebind(`
			SELECT id, event_id, service_id, fee, modifiers
			FROM event_service_lines
			WHERE event_id IN (`+placeholders(len(batch))+`)
			ORDER BY event_id ASC, position ASC
		`), int64Args(batch)...)
		if err != nil {
			return fmt.Errorf("query service lines: %w", err)
		}

		for rows.Next() {
			var (
				line    calendar.ServiceLine
				eventID int64
				mods    string
			)
			if err := rows.Scan(&line.ID, &eventID, &line.ServiceID, &line.Fee, &mods); err != nil {
				rows.Close()
				return fmt.Errorf("scan service line: %w", err)
			}
			if line.Modifiers, err = unmarshalModifiers(mods); err != nil {
				rows.Close()
				return err
			}
			i := index[eventID]
			events[i].Services = append(events[i].Services, line)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate service lines: %w", err)
		}
	}
	return nil
}

// GetSeriesState returns the materialization state of a root.
func (s *Store) GetSeriesState(ctx context.Context, rootID int64) (calendar.SeriesState, error) {
	return s.getSeriesState(ctx, s.db, rootID)
}

// GetSeriesState returns the materialization state of a root.
func (t *Tx) GetSeriesState(ctx context.Context, rootID int64) (calendar.SeriesState, error) {
	return t.s.getSeriesState(ctx, t.tx, rootID)
}

func (s *Store) getSeriesState(ctx context.Context, q querier, rootID int64) (calendar.SeriesState, error) {
	row := q.QueryRowContext(ctx, s.rebind(`
		SELECT root_id, status, horizon_at, job_id, error, updated_at
		FROM series_state
		WHERE root_id = ?
	`), rootID)
	st, err := s.scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.SeriesState{}, fmt.Errorf("series state %d: %w", rootID, ErrNotFound)
	}
	if err != nil {
		return calendar.SeriesState{}, fmt.Errorf("series state %d: %w", rootID, err)
	}
	return st, nil
}

// SeriesStates returns the states of the given roots keyed by root id.
// Roots without a state are absent from the map.
func (s *Store) SeriesStates(ctx context.Context, rootIDs []int64) (map[int64]calendar.SeriesState, error) {
	out := make(map[int64]calendar.SeriesState, len(rootIDs))
	for len(rootIDs) > 0 {
		n := min(len(rootIDs), serviceBatch)
		batch := rootIDs[:n]
		rootIDs = rootIDs[n:]

		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT root_id, status, horizon_at, job_id, error, updated_at
			FROM series_state
			WHERE root_id IN (`+placeholders(len(batch))+`)
		`), int64Args(batch)...)
		if err != nil {
			return nil, fmt.Errorf("query series states: %w", err)
		}
		for rows.Next() {
			st, err := s.scanState(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan series state: %w", err)
			}
			out[st.RootID] = st
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate series states: %w", err)
		}
	}
	return out, nil
}

// ListSeriesStates returns states with any of the given statuses, or all
// states when none are given, ordered by root id.
func (s *Store) ListSeriesStates(ctx context.Context, statuses ...calendar.GenerationStatus) ([]calendar.SeriesState, error) {
	query := `SELECT root_id, status, horizon_at, job_id, error, updated_at FROM series_state`
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
	}
	query += ` ORDER BY root_id ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list series states: %w", err)
	}
	defer rows.Close()

	states := []calendar.SeriesState{}
	for rows.Next() {
		st, err := s.scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan series state: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series states: %w", err)
	}
	return states, nil
}
