package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/recurrence"
	"github.com/roach88/cadence/internal/store"
)

// The types below share the JSON shape of the value they wrap and add a
// text rendering for --format text.

type eventText calendar.View

func (v eventText) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k string, val any) { fmt.Fprintf(tw, "%s:\t%v\n", k, val) }

	row("ID", v.ID)
	row("Kind", v.Kind)
	if v.Title != "" {
		row("Title", v.Title)
	}
	row("Start", v.Start)
	row("End", v.End)
	if v.AllDay {
		row("All day", "yes")
	}
	row("Clinician", v.ClinicianID)
	if v.ClientID != nil {
		row("Client", *v.ClientID)
	}
	if v.LocationID != nil {
		row("Location", *v.LocationID)
	}
	if v.StatusID != nil {
		row("Status", *v.StatusID)
	}
	if v.AppointmentTotal != nil {
		row("Total", *v.AppointmentTotal)
	}
	if v.RecurrenceRule != "" {
		row("Rule", v.RecurrenceRule)
		row("Repeats", v.RecurrenceSummary)
	}
	if v.ParentID != nil {
		row("Series", *v.ParentID)
		row("Occurrence", v.OccurrenceDate)
	}
	if v.Series != nil {
		row("Materialized", v.Series.Status)
		if v.Series.Horizon != "" {
			row("Horizon", v.Series.Horizon)
		}
	}
	for _, s := range v.Services {
		row("Service", fmt.Sprintf("%d fee=%d %s", s.ServiceID, s.Fee, strings.Join(s.Modifiers, ",")))
	}
	if v.Notes != "" {
		row("Notes", v.Notes)
	}
	row("Version", v.Version)
	return tw.Flush()
}

type listText []calendar.View

func (l listText) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No events.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTART\tEND\tCLINICIAN\tSERIES\tTITLE")
	for _, v := range l {
		series := "-"
		switch {
		case v.RecurrenceRule != "":
			series = "root"
		case v.ParentID != nil:
			series = fmt.Sprint(*v.ParentID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			v.ID, v.Kind, v.Start, v.End, v.ClinicianID, series, v.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d event(s)\n", len(l))
	return err
}

type deleteText engine.DeleteResult

func (d deleteText) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Deleted %d event(s): %s\n", len(d.Deleted), joinIDs(d.Deleted))
	if len(d.Detached) > 0 {
		fmt.Fprintf(w, "Detached: %s\n", joinIDs(d.Detached))
	}
	if d.PromotedID != 0 {
		fmt.Fprintf(w, "New series root: %d\n", d.PromotedID)
	}
	return nil
}

type reconcileText engine.ReconcileResult

func (r reconcileText) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Reconciled: %d created, %d deleted\n", r.Created, r.Deleted)
	return err
}

type stateText calendar.SeriesStateView

func (s stateText) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Status: %s\n", s.Status)
	if s.Horizon != "" {
		fmt.Fprintf(w, "Horizon: %s\n", s.Horizon)
	}
	if s.JobID != "" {
		fmt.Fprintf(w, "Job: %s\n", s.JobID)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", s.Error)
	}
	return nil
}

type previewText recurrence.Preview

func (p previewText) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s\n", p.Summary)
	for i, t := range p.Instants {
		fmt.Fprintf(w, "%3d  %s\n", i+1, t.Format(time.RFC3339))
	}
	switch {
	case p.Truncated:
		fmt.Fprintln(w, "...")
	case !p.Bounded:
		fmt.Fprintln(w, "(unbounded)")
	}
	return nil
}

type violationsText []store.Violation

func (vs violationsText) WriteText(w io.Writer) error {
	if len(vs) == 0 {
		_, err := fmt.Fprintln(w, "OK: no violations")
		return err
	}
	for _, v := range vs {
		fmt.Fprintln(w, v.String())
	}
	_, err := fmt.Fprintf(w, "%d violation(s)\n", len(vs))
	return err
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
