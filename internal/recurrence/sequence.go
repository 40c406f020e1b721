package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

var rruleFreq = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var rruleWeekday = [...]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// Sequence is a rule bound to a start instant.
//
// Instants are produced in the start instant's location, so wall-clock time
// is preserved across DST transitions. A Sequence holds no iteration state
// and may be walked any number of times.
type Sequence struct {
	rule  *Rule
	start time.Time
	until time.Time
	rr    *rrule.RRule
}

// Sequence binds r to start. The start is truncated to whole seconds.
func (r *Rule) Sequence(start time.Time) (*Sequence, error) {
	start = start.Truncate(time.Second)

	opt := rrule.ROption{
		Freq:     rruleFreq[r.Freq],
		Dtstart:  start,
		Interval: r.Interval,
	}
	for _, d := range r.ByDay {
		opt.Byweekday = append(opt.Byweekday, rruleWeekday[d])
	}
	if r.ByMonthDay != 0 {
		opt.Bymonthday = []int{r.ByMonthDay}
	}
	if r.BySetPos != 0 {
		opt.Bysetpos = []int{r.BySetPos}
	}

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, invalid(r.String(), "cannot expand: %v", err)
	}

	seq := &Sequence{rule: r, start: start, rr: rr}
	if until, ok := r.UntilIn(start.Location()); ok {
		seq.until = until
	}
	return seq, nil
}

// Rule returns the rule the sequence expands.
func (s *Sequence) Rule() *Rule { return s.rule }

// Start returns the first instant.
func (s *Sequence) Start() time.Time { return s.start }

// Iterator returns a fresh iterator positioned before the first instant.
func (s *Sequence) Iterator() *Iterator {
	return &Iterator{seq: s, next: s.rr.Iterator()}
}

// Take returns at most n instants from the beginning of the sequence.
func (s *Sequence) Take(n int) []time.Time {
	out := make([]time.Time, 0, n)
	it := s.Iterator()
	for len(out) < n {
		t, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

// Through returns the instants not after end, capped at limit. exhausted is
// true when the rule has no instants beyond the returned ones.
func (s *Sequence) Through(end time.Time, limit int) (instants []time.Time, exhausted bool) {
	it := s.Iterator()
	for {
		t, ok := it.Next()
		if !ok {
			return instants, true
		}
		if t.After(end) || len(instants) >= limit {
			return instants, false
		}
		instants = append(instants, t)
	}
}

// Window returns the instants in [from, to), capped at limit.
func (s *Sequence) Window(from, to time.Time, limit int) []time.Time {
	var out []time.Time
	it := s.Iterator()
	for len(out) < limit {
		t, ok := it.Next()
		if !ok || !t.Before(to) {
			break
		}
		if t.Before(from) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Iterator walks a Sequence once.
type Iterator struct {
	seq     *Sequence
	next    rrule.Next
	emitted int
	last    time.Time
	done    bool
}

// Next returns the next instant. The first call always returns the start
// instant. Instants are strictly increasing. The second result is false once
// COUNT or UNTIL is reached.
func (it *Iterator) Next() (time.Time, bool) {
	if it.done {
		return time.Time{}, false
	}

	if it.emitted == 0 {
		it.emitted = 1
		it.last = it.seq.start
		return it.seq.start, true
	}

	count := it.seq.rule.Count
	for {
		if count > 0 && it.emitted >= count {
			it.done = true
			return time.Time{}, false
		}

		t, ok := it.next()
		if !ok {
			it.done = true
			return time.Time{}, false
		}
		if !t.After(it.last) {
			continue
		}
		if !it.seq.until.IsZero() && t.After(it.seq.until) {
			it.done = true
			return time.Time{}, false
		}

		it.emitted++
		it.last = t
		return t, true
	}
}
