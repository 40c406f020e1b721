package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the event variants.
type Kind string

const (
	Appointment Kind = "APPOINTMENT"
	Generic     Kind = "GENERIC"
	OutOfOffice Kind = "OUT_OF_OFFICE"
)

// ParseKind accepts the kind tokens used by clients, case-insensitively.
// "EVENT" is the legacy spelling of GENERIC.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APPOINTMENT":
		return Appointment, nil
	case "GENERIC", "EVENT":
		return Generic, nil
	case "OUT_OF_OFFICE", "OUTOFOFFICE", "OOO":
		return OutOfOffice, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// OccurrenceDateLayout is the layout of Event.OccurrenceDate.
const OccurrenceDateLayout = "2006-01-02"

// ServiceLine is a billable line attached to an appointment. Fee is in
// integer cents. Lines belong to exactly one event and are copied, never
// shared, when occurrences are materialized.
type ServiceLine struct {
	ID        int64    `json:"id,omitempty"`
	ServiceID int64    `json:"service_id"`
	Fee       int64    `json:"fee"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// Event is a single calendar entry: a standalone event, a series root, or a
// materialized occurrence of a series.
//
// Nullable foreign ids use zero for "absent".
type Event struct {
	ID   int64
	Kind Kind

	Start  time.Time
	End    time.Time
	AllDay bool

	ClinicianID int64
	LocationID  int64
	ClientID    int64
	StatusID    int64

	Title string
	Notes string

	AppointmentTotal   int64
	CancelAppointments bool
	NotifyClients      bool

	IsRecurring    bool
	RecurrenceRule string
	ParentID       int64
	OccurrenceDate string

	// SeriesStart is the instant a root's rule is expanded from. It starts
	// out equal to Start and stays put when the root alone is edited, so
	// the rule keeps producing its own instants. Zero on non-roots.
	SeriesStart time.Time

	Services []ServiceLine

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRoot reports whether e heads a series.
func (e *Event) IsRoot() bool {
	return e.ParentID == 0 && e.IsRecurring
}

// IsOccurrence reports whether e is a materialized child of a series.
func (e *Event) IsOccurrence() bool {
	return e.ParentID != 0
}

// RootID returns the id of the series e belongs to, or e's own id when e is
// a root or standalone.
func (e *Event) RootID() int64 {
	if e.ParentID != 0 {
		return e.ParentID
	}
	return e.ID
}

// Anchor is the instant e's rule is expanded from: SeriesStart, or Start
// when none is recorded.
func (e *Event) Anchor() time.Time {
	if e.SeriesStart.IsZero() {
		return e.Start
	}
	return e.SeriesStart
}

// Duration is End minus Start.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Clone returns a deep copy; service lines are duplicated without ids.
func (e *Event) Clone() Event {
	out := *e
	out.Services = CloneServices(e.Services)
	return out
}

// Detach turns e into a standalone, non-recurring event.
func (e *Event) Detach() {
	e.ParentID = 0
	e.IsRecurring = false
	e.RecurrenceRule = ""
	e.OccurrenceDate = ""
	e.SeriesStart = time.Time{}
}

// CloneServices deep-copies lines and clears their ids.
func CloneServices(lines []ServiceLine) []ServiceLine {
	if lines == nil {
		return nil
	}
	out := make([]ServiceLine, len(lines))
	for i, l := range lines {
		out[i] = ServiceLine{
			ServiceID: l.ServiceID,
			Fee:       l.Fee,
			Modifiers: append([]string(nil), l.Modifiers...),
		}
	}
	return out
}

// Draft is the template a caller submits to create an event or series.
type Draft struct {
	Kind   Kind
	Start  time.Time
	End    time.Time
	AllDay bool

	ClinicianID int64
	LocationID  int64
	ClientID    int64
	StatusID    int64

	Title string
	Notes string

	AppointmentTotal   int64
	CancelAppointments bool
	NotifyClients      bool

	Services []ServiceLine

	// RecurrenceRule is empty for a one-off event.
	RecurrenceRule string
}

// Event builds the root (or standalone) event described by d.
func (d Draft) Event() Event {
	ev := Event{
		Kind:               d.Kind,
		Start:              d.Start,
		End:                d.End,
		AllDay:             d.AllDay,
		ClinicianID:        d.ClinicianID,
		LocationID:         d.LocationID,
		ClientID:           d.ClientID,
		StatusID:           d.StatusID,
		Title:              d.Title,
		Notes:              d.Notes,
		AppointmentTotal:   d.AppointmentTotal,
		CancelAppointments: d.CancelAppointments,
		NotifyClients:      d.NotifyClients,
		Services:           CloneServices(d.Services),
		IsRecurring:        d.RecurrenceRule != "",
		RecurrenceRule:     d.RecurrenceRule,
	}
	if ev.IsRecurring {
		ev.SeriesStart = d.Start
	}
	return ev
}

// Occurrence builds the child of root e starting at instant. Kind-specific
// fields and the root's duration are copied; the rule is not.
func (e *Event) Occurrence(instant time.Time, loc *time.Location) Event {
	child := e.Clone()
	child.ID = 0
	child.Version = 0
	child.CreatedAt, child.UpdatedAt = time.Time{}, time.Time{}
	child.Start = instant
	child.End = instant.Add(e.Duration())
	child.ParentID = e.ID
	child.IsRecurring = true
	child.RecurrenceRule = ""
	child.SeriesStart = time.Time{}
	child.OccurrenceDate = instant.In(loc).Format(OccurrenceDateLayout)
	return child
}
