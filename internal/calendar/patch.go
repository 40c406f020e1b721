package calendar

import (
	"time"

	"github.com/samber/mo"
)

// Patch is a partial update. Absent options leave the field unchanged.
// For the nullable ids, Some(0) clears the reference.
type Patch struct {
	Start  mo.Option[time.Time]
	End    mo.Option[time.Time]
	AllDay mo.Option[bool]

	ClinicianID mo.Option[int64]
	LocationID  mo.Option[int64]
	ClientID    mo.Option[int64]
	StatusID    mo.Option[int64]

	Title mo.Option[string]
	Notes mo.Option[string]

	AppointmentTotal   mo.Option[int64]
	CancelAppointments mo.Option[bool]
	NotifyClients      mo.Option[bool]

	Services mo.Option[[]ServiceLine]

	// RecurrenceRule may only change with series scope. Some("") removes the
	// recurrence.
	RecurrenceRule mo.Option[string]
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return !p.Start.IsPresent() && !p.End.IsPresent() && !p.AllDay.IsPresent() &&
		!p.ClinicianID.IsPresent() && !p.LocationID.IsPresent() &&
		!p.ClientID.IsPresent() && !p.StatusID.IsPresent() &&
		!p.Title.IsPresent() && !p.Notes.IsPresent() &&
		!p.AppointmentTotal.IsPresent() && !p.CancelAppointments.IsPresent() &&
		!p.NotifyClients.IsPresent() && !p.Services.IsPresent() &&
		!p.RecurrenceRule.IsPresent()
}

// Apply writes every present field onto e, times included.
func (p Patch) Apply(e *Event) {
	if v, ok := p.Start.Get(); ok {
		e.Start = v
	}
	if v, ok := p.End.Get(); ok {
		e.End = v
	}
	p.ApplyContent(e)
}

// ApplyContent writes the present non-time fields onto e. Series edits use it
// for tail occurrences, whose times move by a shift instead.
func (p Patch) ApplyContent(e *Event) {
	if v, ok := p.AllDay.Get(); ok {
		e.AllDay = v
	}
	if v, ok := p.ClinicianID.Get(); ok {
		e.ClinicianID = v
	}
	if v, ok := p.LocationID.Get(); ok {
		e.LocationID = v
	}
	if v, ok := p.ClientID.Get(); ok {
		e.ClientID = v
	}
	if v, ok := p.StatusID.Get(); ok {
		e.StatusID = v
	}
	if v, ok := p.Title.Get(); ok {
		e.Title = v
	}
	if v, ok := p.Notes.Get(); ok {
		e.Notes = v
	}
	if v, ok := p.AppointmentTotal.Get(); ok {
		e.AppointmentTotal = v
	}
	if v, ok := p.CancelAppointments.Get(); ok {
		e.CancelAppointments = v
	}
	if v, ok := p.NotifyClients.Get(); ok {
		e.NotifyClients = v
	}
	if v, ok := p.Services.Get(); ok {
		e.Services = CloneServices(v)
	}
}

// Shift computes how far a patch moves e's start and end.
func (p Patch) Shift(e Event) (startDelta, endDelta time.Duration) {
	if v, ok := p.Start.Get(); ok {
		startDelta = v.Sub(e.Start)
	}
	if v, ok := p.End.Get(); ok {
		endDelta = v.Sub(e.End)
	}
	return startDelta, endDelta
}
