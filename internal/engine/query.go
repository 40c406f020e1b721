package engine

import (
	"context"
	"strings"
	"time"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/recurrence"
	"github.com/roach88/cadence/internal/store"
)

// Role is the caller's role for listing.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleClinician Role = "CLINICIAN"
)

// ParseRole maps a role token onto a Role, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleClinician:
		return RoleClinician, nil
	}
	return "", NewValidationError("role", "unknown role "+s)
}

// Query selects events for ListEvents.
type Query struct {
	Role    Role
	ActorID int64

	// Start and End bound the event start, half-open. Both zero means the
	// current month; End zero means one month after Start.
	Start time.Time
	End   time.Time

	// ResourceID filters by clinician; LocationID by location. Zero does not
	// filter.
	ResourceID int64
	LocationID int64
}

// ListEvents returns the events visible to the caller in the query range,
// ordered by start. Clinicians only see their own events.
func (e *Engine) ListEvents(ctx context.Context, q Query) ([]calendar.View, error) {
	f, err := e.filter(q)
	if err != nil {
		return nil, err
	}
	if q.Role == RoleClinician && q.ResourceID != 0 && q.ResourceID != q.ActorID {
		return []calendar.View{}, nil
	}

	events, err := e.store.ListEvents(ctx, f)
	if err != nil {
		return nil, classify(err, 0)
	}

	var roots []int64
	for _, ev := range events {
		if ev.IsRoot() {
			roots = append(roots, ev.ID)
		}
	}
	states, err := e.store.SeriesStates(ctx, roots)
	if err != nil {
		return nil, classify(err, 0)
	}

	out := make([]calendar.View, len(events))
	for i, ev := range events {
		var st *calendar.SeriesState
		if s, ok := states[ev.ID]; ok {
			st = &s
		}
		out[i] = calendar.NewView(ev, e.loc, st)
	}

	e.log.Debug("events listed",
		"role", q.Role,
		"from", f.From,
		"to", f.To,
		"count", len(out),
	)
	return out, nil
}

func (e *Engine) filter(q Query) (store.EventFilter, error) {
	var f store.EventFilter
	switch q.Role {
	case RoleAdmin:
		f.ClinicianID = q.ResourceID
	case RoleClinician:
		if q.ActorID <= 0 {
			return f, NewValidationError("actor_id", "is required for clinicians")
		}
		f.ClinicianID = q.ActorID
	default:
		return f, NewValidationError("role", "unknown role "+string(q.Role))
	}
	f.LocationID = q.LocationID

	switch {
	case q.Start.IsZero() && q.End.IsZero():
		f.From, f.To = calendar.MonthRange(e.clock.Now(), e.loc)
	case q.End.IsZero():
		f.From, f.To = q.Start, q.Start.AddDate(0, 1, 0)
	case q.Start.IsZero():
		f.From, f.To = calendar.MonthRange(q.End.Add(-time.Second), e.loc)
		f.To = q.End
	default:
		f.From, f.To = q.Start, q.End
	}
	if !f.To.After(f.From) {
		return f, NewValidationError("end", "must be after start")
	}
	return f, nil
}

// SeriesStatus returns the materialization state of the series rootID.
func (e *Engine) SeriesStatus(ctx context.Context, rootID int64) (calendar.SeriesState, error) {
	ev, err := e.store.GetEvent(ctx, rootID)
	if err != nil {
		return calendar.SeriesState{}, classify(err, rootID)
	}
	if !ev.IsRoot() {
		return calendar.SeriesState{}, NewValidationError("id", "event is not a series root")
	}
	st, err := e.store.GetSeriesState(ctx, rootID)
	if err != nil {
		return calendar.SeriesState{}, classify(err, rootID)
	}
	return st, nil
}

// Series loads the series id belongs to. A standalone event comes back as
// a series with no rule and no occurrences.
func (e *Engine) Series(ctx context.Context, id int64) (*calendar.Series, error) {
	ev, err := e.store.GetEvent(ctx, id)
	if err != nil {
		return nil, classify(err, id)
	}
	s, err := e.store.LoadSeries(ctx, ev.RootID())
	if err != nil {
		return nil, classify(err, id)
	}
	return s, nil
}

// Check reports graph invariant violations found in the store.
func (e *Engine) Check(ctx context.Context) ([]store.Violation, error) {
	return e.store.CheckGraph(ctx)
}

// PreviewRule validates rule against start and returns its first n
// instants in the engine's zone.
func (e *Engine) PreviewRule(rule string, start time.Time, n int) (*recurrence.Preview, error) {
	if n <= 0 {
		return nil, NewValidationError("count", "must be positive")
	}
	p, err := recurrence.Validate(rule, start.In(e.loc), n)
	if err != nil {
		return nil, NewInvalidRuleError(err)
	}
	return p, nil
}
