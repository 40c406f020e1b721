// Package ics renders series as iCalendar documents.
//
// A series becomes one master VEVENT carrying the rule and its exceptions
// as EXDATEs, followed by one VEVENT per materialized occurrence that
// overrides its rule instant through RECURRENCE-ID. All members share the
// root's UID, so calendar clients see a single recurring event.
package ics

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-ical"

	"github.com/roach88/cadence/internal/calendar"
)

// ProductID identifies the generator in exported calendars.
const ProductID = "-//cadence//Scheduling Engine//EN"

const propRecurrenceID = "RECURRENCE-ID"

// UID is the iCalendar UID of the series rooted at rootID.
func UID(rootID int64) string {
	return "cadence-" + strconv.FormatInt(rootID, 10)
}

// Series renders s in loc. stamp becomes every component's DTSTAMP.
func Series(s *calendar.Series, loc *time.Location, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	root := s.Root.Event
	anchor := root.Anchor()
	base := root
	base.Start, base.End = anchor, anchor.Add(root.Duration())
	master := component(base, UID(root.ID), loc, stamp)
	if s.Root.Rule != nil {
		// RECUR values are not TEXT and must not be escaped.
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = s.Root.Rule.String()
		master.Props.Set(rrule)
		for _, ex := range s.Exceptions {
			master.Props.Add(dateProp(ical.PropExceptionDates, ex, root.AllDay, loc))
		}
	}
	cal.Children = append(cal.Children, master.Component)

	// A root moved by a single edit overrides the first instant.
	if !root.Start.Equal(anchor) {
		ev := component(root, UID(root.ID), loc, stamp)
		ev.Props.Set(dateProp(propRecurrenceID, anchor, root.AllDay, loc))
		cal.Children = append(cal.Children, ev.Component)
	}

	for _, c := range s.Children {
		ev := component(c.Event, UID(root.ID), loc, stamp)
		ev.Props.Set(dateProp(propRecurrenceID, calendar.RuleInstant(root, c.Event, loc), root.AllDay, loc))
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal
}

// Encode writes cal to w.
func Encode(w io.Writer, cal *ical.Calendar) error {
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func component(e calendar.Event, uid string, loc *time.Location, stamp time.Time) *ical.Event {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ev.Props.Set(dateProp(ical.PropDateTimeStart, e.Start, e.AllDay, loc))
	ev.Props.Set(dateProp(ical.PropDateTimeEnd, e.End, e.AllDay, loc))
	ev.Props.SetText(ical.PropSummary, summary(e))
	if e.Notes != "" {
		ev.Props.SetText(ical.PropDescription, e.Notes)
	}
	ev.Props.SetText(ical.PropCategories, string(e.Kind))
	return ev
}

// dateProp renders t as a DATE for all-day events and as a zoned DATE-TIME
// otherwise.
func dateProp(name string, t time.Time, allDay bool, loc *time.Location) *ical.Prop {
	p := ical.NewProp(name)
	if allDay {
		p.SetDate(t.In(loc))
	} else {
		p.SetDateTime(t.In(loc))
	}
	return p
}

func summary(e calendar.Event) string {
	if e.Title != "" {
		return e.Title
	}
	switch e.Kind {
	case calendar.Appointment:
		return "Appointment"
	case calendar.OutOfOffice:
		return "Out of office"
	}
	return "Event"
}
