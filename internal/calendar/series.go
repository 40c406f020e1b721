package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/cadence/internal/recurrence"
)

// SeriesRoot is the head of a series. It alone carries the rule.
type SeriesRoot struct {
	Event
	Rule *recurrence.Rule
}

// Occurrence is a materialized member of a series. It refers to its root and
// nothing else; occurrences never have children of their own.
type Occurrence struct {
	Event
	Root int64
}

// Series is a root together with its occurrences, ordered by start then id.
type Series struct {
	Root     SeriesRoot
	Children []Occurrence

	// Exceptions are instants the rule still produces but which must not be
	// materialized again.
	Exceptions []time.Time
}

// NewSeries assembles a Series from a root event and its direct children.
// It fails if root is not a series root or any child points elsewhere.
func NewSeries(root Event, children []Event, exceptions []time.Time) (*Series, error) {
	if root.ParentID != 0 {
		return nil, fmt.Errorf("event %d is an occurrence of %d, not a root", root.ID, root.ParentID)
	}

	s := &Series{Root: SeriesRoot{Event: root}, Exceptions: exceptions}
	if root.RecurrenceRule != "" {
		rule, err := recurrence.Parse(root.RecurrenceRule)
		if err != nil {
			return nil, err
		}
		s.Root.Rule = rule
	}

	for _, c := range children {
		if c.ParentID != root.ID {
			return nil, fmt.Errorf("event %d belongs to %d, not %d", c.ID, c.ParentID, root.ID)
		}
		s.Children = append(s.Children, Occurrence{Event: c, Root: root.ID})
	}
	sort.SliceStable(s.Children, func(i, j int) bool {
		a, b := s.Children[i], s.Children[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	return s, nil
}

// Child returns the occurrence with the given id.
func (s *Series) Child(id int64) (Occurrence, bool) {
	for _, c := range s.Children {
		if c.ID == id {
			return c, true
		}
	}
	return Occurrence{}, false
}

// After returns the occurrences starting strictly after t.
func (s *Series) After(t time.Time) []Occurrence {
	var out []Occurrence
	for _, c := range s.Children {
		if c.Start.After(t) {
			out = append(out, c)
		}
	}
	return out
}

// NotAfter returns the occurrences starting at or before t.
func (s *Series) NotAfter(t time.Time) []Occurrence {
	var out []Occurrence
	for _, c := range s.Children {
		if !c.Start.After(t) {
			out = append(out, c)
		}
	}
	return out
}

// Successor picks the occurrence that takes over when the root goes away:
// the earliest one starting after the root, or failing that the earliest
// one overall.
func (s *Series) Successor() (Occurrence, bool) {
	if later := s.After(s.Root.Start); len(later) > 0 {
		return later[0], true
	}
	if len(s.Children) > 0 {
		return s.Children[0], true
	}
	return Occurrence{}, false
}

// Excluded reports whether instant is a recorded exception.
func (s *Series) Excluded(instant time.Time) bool {
	for _, ex := range s.Exceptions {
		if ex.Equal(instant) {
			return true
		}
	}
	return false
}

// Members returns the root followed by every occurrence.
func (s *Series) Members() []Event {
	out := make([]Event, 0, len(s.Children)+1)
	out = append(out, s.Root.Event)
	for _, c := range s.Children {
		out = append(out, c.Event)
	}
	return out
}

// RuleInstant is the instant the rule produced for child: its occurrence
// date at the wall-clock time of the root's anchor in loc. Children without
// an occurrence date fall back to their start.
func RuleInstant(root, child Event, loc *time.Location) time.Time {
	d, err := time.ParseInLocation(OccurrenceDateLayout, child.OccurrenceDate, loc)
	if err != nil {
		return child.Start
	}
	rs := root.Anchor().In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), rs.Hour(), rs.Minute(), rs.Second(), 0, loc)
}
