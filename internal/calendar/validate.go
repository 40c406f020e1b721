package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// FieldError reports a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AsFieldError extracts a *FieldError from err.
func AsFieldError(err error) (*FieldError, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func fieldErr(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Normalize canonicalizes e in place: instants are truncated to whole
// seconds, free text is NFC-normalized and titles are trimmed.
func Normalize(e *Event) {
	e.Start = e.Start.Truncate(time.Second)
	e.End = e.End.Truncate(time.Second)
	e.SeriesStart = e.SeriesStart.Truncate(time.Second)
	e.Title = strings.TrimSpace(norm.NFC.String(e.Title))
	e.Notes = norm.NFC.String(e.Notes)
	for i := range e.Services {
		for j, m := range e.Services[i].Modifiers {
			e.Services[i].Modifiers[j] = strings.ToUpper(strings.TrimSpace(m))
		}
	}
}

// Validate checks the invariants every stored event must satisfy.
func Validate(e *Event) error {
	switch e.Kind {
	case Appointment, Generic, OutOfOffice:
	default:
		return fieldErr("kind", "unknown kind %q", e.Kind)
	}

	if e.Start.IsZero() {
		return fieldErr("start", "is required")
	}
	if e.End.IsZero() {
		return fieldErr("end", "is required")
	}
	if !e.End.After(e.Start) {
		return fieldErr("end", "must be after start")
	}
	if e.ClinicianID <= 0 {
		return fieldErr("clinician_id", "is required")
	}
	if e.LocationID < 0 || e.ClientID < 0 || e.StatusID < 0 {
		return fieldErr("id", "ids must not be negative")
	}
	if e.AppointmentTotal < 0 {
		return fieldErr("appointment_total", "must not be negative")
	}

	if err := validateGraphFields(e); err != nil {
		return err
	}

	switch e.Kind {
	case Appointment:
		return validateAppointment(e)
	case Generic:
		return validateGeneric(e)
	default:
		return validateOutOfOffice(e)
	}
}

func validateGraphFields(e *Event) error {
	if e.ParentID != 0 {
		if !e.IsRecurring {
			return fieldErr("is_recurring", "occurrences are always recurring")
		}
		if e.RecurrenceRule != "" {
			return fieldErr("recurrence_rule", "only the series root carries a rule")
		}
		return nil
	}
	if e.IsRecurring != (e.RecurrenceRule != "") {
		return fieldErr("recurrence_rule", "a root is recurring exactly when it has a rule")
	}
	return nil
}

func validateAppointment(e *Event) error {
	switch {
	case e.ClientID == 0:
		return fieldErr("client_id", "is required for appointments")
	case e.LocationID == 0:
		return fieldErr("location_id", "is required for appointments")
	case e.StatusID == 0:
		return fieldErr("status_id", "is required for appointments")
	case e.Title != "":
		return fieldErr("title", "appointments take no title")
	case e.CancelAppointments || e.NotifyClients:
		return fieldErr("cancel_appointments", "only out-of-office events cancel or notify")
	}
	for i, l := range e.Services {
		if l.ServiceID <= 0 {
			return fieldErr(fmt.Sprintf("services[%d].service_id", i), "is required")
		}
		if l.Fee < 0 {
			return fieldErr(fmt.Sprintf("services[%d].fee", i), "must not be negative")
		}
	}
	return nil
}

func validateGeneric(e *Event) error {
	switch {
	case e.Title == "":
		return fieldErr("title", "is required for generic events")
	case e.ClientID != 0:
		return fieldErr("client_id", "only appointments have a client")
	case e.StatusID != 0:
		return fieldErr("status_id", "only appointments have a status")
	case e.AppointmentTotal != 0:
		return fieldErr("appointment_total", "only appointments have a total")
	case len(e.Services) > 0:
		return fieldErr("services", "only appointments have service lines")
	case e.CancelAppointments || e.NotifyClients:
		return fieldErr("cancel_appointments", "only out-of-office events cancel or notify")
	}
	return nil
}

func validateOutOfOffice(e *Event) error {
	switch {
	case e.LocationID != 0:
		return fieldErr("location_id", "out-of-office events have no location")
	case e.ClientID != 0:
		return fieldErr("client_id", "only appointments have a client")
	case e.StatusID != 0:
		return fieldErr("status_id", "only appointments have a status")
	case e.Title != "":
		return fieldErr("title", "out-of-office events take no title")
	case e.AppointmentTotal != 0:
		return fieldErr("appointment_total", "only appointments have a total")
	case len(e.Services) > 0:
		return fieldErr("services", "only appointments have service lines")
	case e.IsRecurring:
		return fieldErr("recurrence_rule", "out-of-office events cannot recur")
	}
	return nil
}
