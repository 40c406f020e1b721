package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/store"
)

const (
	dayLayout  = "2006-01-02"
	wallLayout = "2006-01-02 15:04"
)

// RenderCalendar writes every event in st as text, one line per event.
// Series roots come first with their rule; their occurrences and excluded
// dates follow, indented. Ids are left out so renderings compare across
// runs that allocate ids differently.
func RenderCalendar(ctx context.Context, st *store.Store, loc *time.Location) (string, error) {
	roots, err := st.ListEvents(ctx, store.EventFilter{RootsOnly: true})
	if err != nil {
		return "", fmt.Errorf("render calendar: %w", err)
	}

	var b strings.Builder
	for _, root := range roots {
		if root.RecurrenceRule == "" {
			fmt.Fprintf(&b, "%s %s single%s\n", span(root, loc), root.Kind, extras(root))
			continue
		}

		fmt.Fprintf(&b, "%s %s series %s%s\n", span(root, loc), root.Kind, root.RecurrenceRule, extras(root))
		s, err := st.LoadSeries(ctx, root.ID)
		if err != nil {
			return "", fmt.Errorf("render calendar: %w", err)
		}
		for _, c := range s.Children {
			line := "  " + span(c.Event, loc) + " occurrence"
			if c.OccurrenceDate != c.Start.In(loc).Format(dayLayout) {
				line += " of " + c.OccurrenceDate
			}
			b.WriteString(line + extras(c.Event) + "\n")
		}
		for _, x := range s.Exceptions {
			fmt.Fprintf(&b, "  exdate %s\n", x.In(loc).Format(wallLayout))
		}
	}
	return b.String(), nil
}

// span renders an event's time range.
func span(e calendar.Event, loc *time.Location) string {
	start, end := e.Start.In(loc), e.End.In(loc)
	if e.AllDay {
		return start.Format(dayLayout) + " all-day"
	}
	if start.Format(dayLayout) == end.Format(dayLayout) {
		return start.Format(wallLayout) + "-" + end.Format("15:04")
	}
	return start.Format(wallLayout) + " to " + end.Format(wallLayout)
}

// extras renders the free-text fields that are set.
func extras(e calendar.Event) string {
	var out string
	if e.Title != "" {
		out += fmt.Sprintf(" title=%q", e.Title)
	}
	if e.Notes != "" {
		out += fmt.Sprintf(" notes=%q", e.Notes)
	}
	return out
}

// Snapshot renders a result the way golden files store it: the trace, then
// the final calendar.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n-- trace --\n", name)
	for _, ev := range result.Trace {
		fmt.Fprintln(&b, ev.String())
	}
	b.WriteString("-- calendar --\n")
	b.WriteString(result.Calendar)
	return []byte(b.String())
}

// RunWithGolden executes a scenario, fails the test on any failed
// expectation and compares the snapshot with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
