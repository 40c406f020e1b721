package httpapi

import (
	"time"

	"github.com/samber/mo"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/engine"
)

// EventRequest is the body of a create call. Instants are ISO-8601; values
// without an offset are wall-clock times in the configured zone.
type EventRequest struct {
	Kind   string `json:"kind"`
	Start  string `json:"start"`
	End    string `json:"end"`
	AllDay bool   `json:"all_day"`

	ClinicianID int64 `json:"clinician_id"`
	LocationID  int64 `json:"location_id"`
	ClientID    int64 `json:"client_id"`
	StatusID    int64 `json:"status_id"`

	Title string `json:"title"`
	Notes string `json:"notes"`

	AppointmentTotal   int64 `json:"appointment_total"`
	CancelAppointments bool  `json:"cancel_appointments"`
	NotifyClients      bool  `json:"notify_clients"`

	Services []calendar.ServiceLine `json:"services"`

	RecurrenceRule string `json:"recurrence_rule"`
}

// Draft converts r into a draft, reading instants in loc.
func (r EventRequest) Draft(loc *time.Location) (calendar.Draft, error) {
	kind, err := calendar.ParseKind(r.Kind)
	if err != nil {
		return calendar.Draft{}, engine.NewValidationError("kind", err.Error())
	}
	start, err := instant("start", r.Start, loc)
	if err != nil {
		return calendar.Draft{}, err
	}
	end, err := instant("end", r.End, loc)
	if err != nil {
		return calendar.Draft{}, err
	}
	return calendar.Draft{
		Kind:               kind,
		Start:              start,
		End:                end,
		AllDay:             r.AllDay,
		ClinicianID:        r.ClinicianID,
		LocationID:         r.LocationID,
		ClientID:           r.ClientID,
		StatusID:           r.StatusID,
		Title:              r.Title,
		Notes:              r.Notes,
		AppointmentTotal:   r.AppointmentTotal,
		CancelAppointments: r.CancelAppointments,
		NotifyClients:      r.NotifyClients,
		Services:           r.Services,
		RecurrenceRule:     r.RecurrenceRule,
	}, nil
}

// PatchRequest is the body of an edit call. Absent fields are left alone;
// a null or zero id clears the reference.
type PatchRequest struct {
	Start  *string `json:"start"`
	End    *string `json:"end"`
	AllDay *bool   `json:"all_day"`

	ClinicianID *int64 `json:"clinician_id"`
	LocationID  *int64 `json:"location_id"`
	ClientID    *int64 `json:"client_id"`
	StatusID    *int64 `json:"status_id"`

	Title *string `json:"title"`
	Notes *string `json:"notes"`

	AppointmentTotal   *int64 `json:"appointment_total"`
	CancelAppointments *bool  `json:"cancel_appointments"`
	NotifyClients      *bool  `json:"notify_clients"`

	Services *[]calendar.ServiceLine `json:"services"`

	RecurrenceRule *string `json:"recurrence_rule"`
}

// Patch converts r into a patch, reading instants in loc.
func (r PatchRequest) Patch(loc *time.Location) (calendar.Patch, error) {
	p := calendar.Patch{
		AllDay:             mo.PointerToOption(r.AllDay),
		ClinicianID:        mo.PointerToOption(r.ClinicianID),
		LocationID:         mo.PointerToOption(r.LocationID),
		ClientID:           mo.PointerToOption(r.ClientID),
		StatusID:           mo.PointerToOption(r.StatusID),
		Title:              mo.PointerToOption(r.Title),
		Notes:              mo.PointerToOption(r.Notes),
		AppointmentTotal:   mo.PointerToOption(r.AppointmentTotal),
		CancelAppointments: mo.PointerToOption(r.CancelAppointments),
		NotifyClients:      mo.PointerToOption(r.NotifyClients),
		Services:           mo.PointerToOption(r.Services),
		RecurrenceRule:     mo.PointerToOption(r.RecurrenceRule),
	}
	if r.Start != nil {
		t, err := instant("start", *r.Start, loc)
		if err != nil {
			return calendar.Patch{}, err
		}
		p.Start = mo.Some(t)
	}
	if r.End != nil {
		t, err := instant("end", *r.End, loc)
		if err != nil {
			return calendar.Patch{}, err
		}
		p.End = mo.Some(t)
	}
	if p.IsEmpty() {
		return calendar.Patch{}, engine.NewValidationError("body", "patch changes nothing")
	}
	return p, nil
}

// RuleRequest replaces the rule of a series.
type RuleRequest struct {
	Rule string `json:"rule"`
}

// PreviewRequest asks for the first Count instants of Rule from Start.
type PreviewRequest struct {
	Rule  string `json:"rule"`
	Start string `json:"start"`
	Count int    `json:"count"`
}

// DefaultPreviewCount is used when a preview request leaves count unset.
const DefaultPreviewCount = 10

// MaxPreviewCount caps a preview request.
const MaxPreviewCount = 366

func instant(field, s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, engine.NewValidationError(field, "is required")
	}
	t, err := calendar.ParseInstant(s, loc)
	if err != nil {
		return time.Time{}, engine.NewValidationError(field, err.Error())
	}
	return t, nil
}
