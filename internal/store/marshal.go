package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cadence/internal/calendar"
)

// marshalModifiers converts a modifier list to JSON TEXT for storage.
// HTML escaping is disabled so codes are stored as written.
func marshalModifiers(mods []string) (string, error) {
	if len(mods) == 0 {
		return "[]", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(mods); err != nil {
		return "", fmt.Errorf("marshal modifiers: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalModifiers parses JSON TEXT into a modifier list. An empty list
// is returned as nil.
func unmarshalModifiers(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var mods []string
	if err := json.Unmarshal([]byte(data), &mods); err != nil {
		return nil, fmt.Errorf("unmarshal modifiers: %w", err)
	}
	return mods, nil
}

// nullID maps the zero id to NULL.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInstant(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: t.Unix(), Valid: !t.IsZero()}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent reads one events row in eventColumns order. Service lines are
// loaded separately.
func (s *Store) scanEvent(row rowScanner) (calendar.Event, error) {
	var (
		e                        calendar.Event
		kind                     string
		start, end               int64
		created, updated         int64
		location, client, status sql.NullInt64
		parent                   sql.NullInt64
		rule, occurrenceDate     sql.NullString
		seriesStart              sql.NullInt64
	)
	err := row.Scan(
		&e.ID, &kind, &start, &end, &e.AllDay,
		&e.ClinicianID, &location, &client, &status,
		&e.Title, &e.Notes, &e.AppointmentTotal, &e.CancelAppointments, &e.NotifyClients,
		&e.IsRecurring, &rule, &parent, &occurrenceDate, &seriesStart,
		&e.Version, &created, &updated,
	)
	if err != nil {
		return calendar.Event{}, err
	}

	e.Kind = calendar.Kind(kind)
	e.Start = s.instant(start)
	e.End = s.instant(end)
	e.LocationID = location.Int64
	e.ClientID = client.Int64
	e.StatusID = status.Int64
	e.RecurrenceRule = rule.String
	e.ParentID = parent.Int64
	e.OccurrenceDate = occurrenceDate.String
	if seriesStart.Valid {
		e.SeriesStart = s.instant(seriesStart.Int64)
	}
	e.CreatedAt = s.instant(created)
	e.UpdatedAt = s.instant(updated)
	return e, nil
}

// scanState reads one series_state row in stateColumns order.
func (s *Store) scanState(row rowScanner) (calendar.SeriesState, error) {
	var (
		st      calendar.SeriesState
		status  string
		horizon sql.NullInt64
		updated int64
	)
	if err := row.Scan(&st.RootID, &status, &horizon, &st.JobID, &st.Error, &updated); err != nil {
		return calendar.SeriesState{}, err
	}
	st.Status = calendar.GenerationStatus(status)
	if horizon.Valid {
		st.Horizon = s.instant(horizon.Int64)
	}
	st.UpdatedAt = s.instant(updated)
	return st, nil
}

func (s *Store) instant(unix int64) time.Time {
	return time.Unix(unix, 0).In(s.loc)
}

// eventArgs returns the column values of e after id, in eventColumns order,
// excluding version and the stamps.
func eventArgs(e *calendar.Event) []any {
	return []any{
		string(e.Kind), e.Start.Unix(), e.End.Unix(), e.AllDay,
		e.ClinicianID, nullID(e.LocationID), nullID(e.ClientID), nullID(e.StatusID),
		e.Title, e.Notes, e.AppointmentTotal, e.CancelAppointments, e.NotifyClients,
		e.IsRecurring, nullString(e.RecurrenceRule), nullID(e.ParentID), nullString(e.OccurrenceDate),
		nullInstant(e.SeriesStart),
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
