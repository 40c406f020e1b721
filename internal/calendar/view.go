package calendar

import (
	"time"

	"github.com/roach88/cadence/internal/recurrence"
)

// GenerationStatus tracks background materialization of a series.
type GenerationStatus string

const (
	StatusPending   GenerationStatus = "pending"
	StatusRunning   GenerationStatus = "running"
	StatusPartial   GenerationStatus = "partial"
	StatusComplete  GenerationStatus = "complete"
	StatusFailed    GenerationStatus = "failed"
	StatusCancelled GenerationStatus = "cancelled"
)

// Terminal reports whether no job is queued or running for the series.
func (s GenerationStatus) Terminal() bool {
	switch s {
	case StatusPending, StatusRunning:
		return false
	}
	return true
}

// SeriesState is the materialization marker kept per root.
type SeriesState struct {
	RootID    int64
	Status    GenerationStatus
	Horizon   time.Time
	JobID     string
	Error     string
	UpdatedAt time.Time
}

// SeriesStateView is the JSON form of SeriesState.
type SeriesStateView struct {
	Status  GenerationStatus `json:"status"`
	Horizon string           `json:"horizon,omitempty"`
	JobID   string           `json:"job_id,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// View is the presentation of an event handed to callers. Instants are
// rendered in the configured zone.
type View struct {
	ID     int64  `json:"id"`
	Kind   Kind   `json:"kind"`
	Start  string `json:"start"`
	End    string `json:"end"`
	AllDay bool   `json:"all_day"`

	ClinicianID int64  `json:"clinician_id"`
	LocationID  *int64 `json:"location_id,omitempty"`
	ClientID    *int64 `json:"client_id,omitempty"`
	StatusID    *int64 `json:"status_id,omitempty"`

	Title string `json:"title,omitempty"`
	Notes string `json:"notes,omitempty"`

	AppointmentTotal   *int64 `json:"appointment_total,omitempty"`
	CancelAppointments bool   `json:"cancel_appointments,omitempty"`
	NotifyClients      bool   `json:"notify_clients,omitempty"`

	IsRecurring       bool   `json:"is_recurring"`
	RecurrenceRule    string `json:"recurrence_rule,omitempty"`
	RecurrenceSummary string `json:"recurrence_summary,omitempty"`
	ParentID          *int64 `json:"parent_id,omitempty"`
	OccurrenceDate    string `json:"occurrence_date,omitempty"`

	Services []ServiceLine   `json:"services,omitempty"`
	Series   *SeriesStateView `json:"series,omitempty"`

	Version int64 `json:"version"`
}

// NewView renders e in loc. state is attached for series roots and may be nil.
func NewView(e Event, loc *time.Location, state *SeriesState) View {
	v := View{
		ID:                 e.ID,
		Kind:               e.Kind,
		Start:              e.Start.In(loc).Format(time.RFC3339),
		End:                e.End.In(loc).Format(time.RFC3339),
		AllDay:             e.AllDay,
		ClinicianID:        e.ClinicianID,
		LocationID:         optionalID(e.LocationID),
		ClientID:           optionalID(e.ClientID),
		StatusID:           optionalID(e.StatusID),
		Title:              e.Title,
		Notes:              e.Notes,
		CancelAppointments: e.CancelAppointments,
		NotifyClients:      e.NotifyClients,
		IsRecurring:        e.IsRecurring,
		RecurrenceRule:     e.RecurrenceRule,
		ParentID:           optionalID(e.ParentID),
		OccurrenceDate:     e.OccurrenceDate,
		Services:           e.Services,
		Version:            e.Version,
	}
	if e.Kind == Appointment {
		total := e.AppointmentTotal
		v.AppointmentTotal = &total
	}
	if e.RecurrenceRule != "" {
		if r, err := recurrence.Parse(e.RecurrenceRule); err == nil {
			v.RecurrenceSummary = r.Summary()
		}
	}
	if state != nil {
		sv := state.View(loc)
		v.Series = &sv
	}
	return v
}

// View renders s in loc.
func (s SeriesState) View(loc *time.Location) SeriesStateView {
	v := SeriesStateView{Status: s.Status, JobID: s.JobID, Error: s.Error}
	if !s.Horizon.IsZero() {
		v.Horizon = s.Horizon.In(loc).Format(time.RFC3339)
	}
	return v
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
