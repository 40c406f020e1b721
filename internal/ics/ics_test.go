package ics

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/calendar"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func weeklySeries(t *testing.T, loc *time.Location) *calendar.Series {
	t.Helper()
	start := time.Date(2024, 1, 8, 10, 0, 0, 0, loc)
	root := calendar.Event{
		ID:             1,
		Kind:           calendar.Appointment,
		Start:          start,
		End:            start.Add(time.Hour),
		Title:          "Therapy",
		Notes:          "Bring intake form",
		IsRecurring:    true,
		RecurrenceRule: "FREQ=WEEKLY;INTERVAL=1;COUNT=4",
	}

	// The second occurrence was moved an hour later; the third was deleted.
	c1 := root.Occurrence(start.AddDate(0, 0, 7), loc)
	c1.ID = 2
	c1.ParentID = 1
	c1.Start = c1.Start.Add(time.Hour)
	c1.End = c1.End.Add(time.Hour)
	c3 := root.Occurrence(start.AddDate(0, 0, 21), loc)
	c3.ID = 4
	c3.ParentID = 1

	s, err := calendar.NewSeries(root, []calendar.Event{c1, c3}, []time.Time{start.AddDate(0, 0, 14)})
	require.NoError(t, err)
	return s
}

func decode(t *testing.T, cal *ical.Calendar) []ical.Event {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, cal))

	got, err := ical.NewDecoder(&buf).Decode()
	require.NoError(t, err)
	return got.Events()
}

func TestSeries(t *testing.T) {
	loc := newYork(t)
	stamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	events := decode(t, Series(weeklySeries(t, loc), loc, stamp))
	require.Len(t, events, 3)

	master := events[0]
	assert.Equal(t, "cadence-1", master.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=1;COUNT=4", master.Props.Get(ical.PropRecurrenceRule).Value)
	assert.Equal(t, "Therapy", master.Props.Get(ical.PropSummary).Value)
	assert.Equal(t, "Bring intake form", master.Props.Get(ical.PropDescription).Value)
	assert.Equal(t, "APPOINTMENT", master.Props.Get(ical.PropCategories).Value)

	dtstart := master.Props.Get(ical.PropDateTimeStart)
	assert.Equal(t, "20240108T100000", dtstart.Value)
	assert.Equal(t, "America/New_York", dtstart.Params.Get(ical.ParamTimezoneID))

	exdates := master.Props.Values(ical.PropExceptionDates)
	require.Len(t, exdates, 1)
	assert.Equal(t, "20240122T100000", exdates[0].Value)
	assert.Nil(t, master.Props.Get(propRecurrenceID))

	moved := events[1]
	assert.Equal(t, "cadence-1", moved.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "20240115T100000", moved.Props.Get(propRecurrenceID).Value, "keyed by the rule instant")
	assert.Equal(t, "20240115T110000", moved.Props.Get(ical.PropDateTimeStart).Value)

	assert.Equal(t, "20240129T100000", events[2].Props.Get(propRecurrenceID).Value)
}

func TestSeries_Standalone(t *testing.T) {
	loc := newYork(t)
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	ev := calendar.Event{ID: 9, Kind: calendar.OutOfOffice, Start: start, End: start.AddDate(0, 0, 1), AllDay: true}
	s, err := calendar.NewSeries(ev, nil, nil)
	require.NoError(t, err)

	events := decode(t, Series(s, loc, start))
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Props.Get(ical.PropRecurrenceRule))
	assert.Equal(t, "Out of office", events[0].Props.Get(ical.PropSummary).Value)
	assert.Equal(t, "20240304", events[0].Props.Get(ical.PropDateTimeStart).Value)
}

func TestSeries_MovedRoot(t *testing.T) {
	loc := newYork(t)
	stamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := weeklySeries(t, loc)
	s.Root.SeriesStart = s.Root.Start
	s.Root.Start = s.Root.Start.Add(4 * time.Hour)
	s.Root.End = s.Root.End.Add(4 * time.Hour)

	events := decode(t, Series(s, loc, stamp))
	require.Len(t, events, 4)

	master := events[0]
	assert.Equal(t, "20240108T100000", master.Props.Get(ical.PropDateTimeStart).Value)
	assert.Equal(t, "20240108T110000", master.Props.Get(ical.PropDateTimeEnd).Value)

	override := events[1]
	assert.Equal(t, "20240108T100000", override.Props.Get(propRecurrenceID).Value)
	assert.Equal(t, "20240108T140000", override.Props.Get(ical.PropDateTimeStart).Value)
	assert.Nil(t, override.Props.Get(ical.PropRecurrenceRule))
}
