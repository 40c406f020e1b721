package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Frequency is the base repetition unit of a rule.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

var frequencyAliases = map[string]Frequency{
	"DAILY":   Daily,
	"D":       Daily,
	"WEEKLY":  Weekly,
	"W":       Weekly,
	"MONTHLY": Monthly,
	"M":       Monthly,
	"YEARLY":  Yearly,
	"Y":       Yearly,
}

// Weekday is a day of the week, Monday first.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayCodes = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

var weekdayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// String returns the two-letter iCalendar code.
func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayCodes[d]
}

func parseWeekday(code string) (Weekday, bool) {
	for i, c := range weekdayCodes {
		if c == code {
			return Weekday(i), true
		}
	}
	return 0, false
}

// UntilForm records how an UNTIL value was written, so it round-trips.
type UntilForm int

const (
	// UntilNone means the rule has no UNTIL.
	UntilNone UntilForm = iota
	// UntilDate is YYYYMMDD: inclusive through 23:59:59 in the series zone.
	UntilDate
	// UntilFloating is YYYYMMDDTHHMMSS: a wall-clock time in the series zone.
	UntilFloating
	// UntilUTC is YYYYMMDDTHHMMSSZ: an absolute instant.
	UntilUTC
)

const (
	untilDateLayout     = "20060102"
	untilFloatingLayout = "20060102T150405"
	untilUTCLayout      = "20060102T150405Z"
)

// Rule is a validated recurrence rule.
//
// Exactly one of Count and Until may be set; neither means the rule is
// unbounded. ByMonthDay and BySetPos are zero when absent.
type Rule struct {
	Freq     Frequency
	Interval int

	Count int

	// Until holds the civil date/time for UntilDate and UntilFloating (in a
	// UTC placeholder location) and the instant for UntilUTC. Use UntilIn to
	// resolve it against a series zone.
	Until     time.Time
	UntilForm UntilForm

	ByDay      []Weekday
	ByMonthDay int
	BySetPos   int
}

// Parse tokenizes and validates a rule string.
//
// Every failure is an *InvalidRuleError. Nothing is defaulted silently except
// INTERVAL, which is 1 when absent.
func Parse(s string) (*Rule, error) {
	tokens, err := Tokenize(s)
	if err != nil {
		return nil, err
	}

	r := &Rule{Interval: 1}
	raw := make(map[Key]string, len(tokens))

	for _, tok := range tokens {
		raw[tok.Key] = tok.Raw
		switch tok.Key {
		case KeyFreq:
			freq, ok := frequencyAliases[strings.ToUpper(tok.Value)]
			if !ok {
				return nil, invalid(tok.Raw, "FREQ must be DAILY, WEEKLY, MONTHLY or YEARLY")
			}
			r.Freq = freq

		case KeyInterval:
			n, err := strconv.Atoi(tok.Value)
			if err != nil || n <= 0 {
				return nil, invalid(tok.Raw, "INTERVAL must be a positive integer")
			}
			r.Interval = n

		case KeyCount:
			n, err := strconv.Atoi(tok.Value)
			if err != nil || n <= 0 {
				return nil, invalid(tok.Raw, "COUNT must be a positive integer")
			}
			r.Count = n

		case KeyUntil:
			until, form, err := parseUntil(tok.Value)
			if err != nil {
				return nil, invalid(tok.Raw, "UNTIL must be YYYYMMDD, YYYYMMDDTHHMMSS or YYYYMMDDTHHMMSSZ")
			}
			r.Until, r.UntilForm = until, form

		case KeyByDay:
			days, err := parseByDay(tok)
			if err != nil {
				return nil, err
			}
			r.ByDay = days

		case KeyByMonthDay:
			n, err := strconv.Atoi(tok.Value)
			if err != nil || n == 0 || n < -31 || n > 31 {
				return nil, invalid(tok.Raw, "BYMONTHDAY must be in 1..31 or -31..-1")
			}
			r.ByMonthDay = n

		case KeyBySetPos:
			n, err := strconv.Atoi(tok.Value)
			if err != nil || n == 0 || n < -5 || n > 5 {
				return nil, invalid(tok.Raw, "BYSETPOS must be in 1..5 or -5..-1")
			}
			r.BySetPos = n
		}
	}

	if err := r.check(raw); err != nil {
		return nil, err
	}
	return r, nil
}

// check enforces the cross-key constraints.
func (r *Rule) check(raw map[Key]string) error {
	if r.Freq == "" {
		return invalid("", "FREQ is required")
	}
	if r.Count > 0 && r.UntilForm != UntilNone {
		return invalid(raw[KeyUntil], "COUNT and UNTIL cannot both be set")
	}

	if len(r.ByDay) > 0 && (r.Freq == Daily || r.Freq == Yearly) {
		return invalid(raw[KeyByDay], "BYDAY is only allowed with WEEKLY or MONTHLY")
	}
	if r.Freq != Monthly {
		if r.ByMonthDay != 0 {
			return invalid(raw[KeyByMonthDay], "BYMONTHDAY is only allowed with MONTHLY")
		}
		if r.BySetPos != 0 {
			return invalid(raw[KeyBySetPos], "BYSETPOS is only allowed with MONTHLY")
		}
		return nil
	}

	hasByDay := len(r.ByDay) > 0
	switch {
	case r.ByMonthDay != 0 && (hasByDay || r.BySetPos != 0):
		return invalid(raw[KeyByMonthDay], "BYMONTHDAY cannot be combined with BYDAY or BYSETPOS")
	case r.ByMonthDay != 0:
		return nil
	case hasByDay && r.BySetPos == 0:
		return invalid(raw[KeyByDay], "monthly BYDAY requires BYSETPOS")
	case !hasByDay && r.BySetPos != 0:
		return invalid(raw[KeyBySetPos], "BYSETPOS requires BYDAY")
	case !hasByDay:
		return invalid(raw[KeyFreq], "monthly rules require BYMONTHDAY or BYDAY with BYSETPOS")
	case len(r.ByDay) != 1:
		return invalid(raw[KeyByDay], "monthly BYDAY takes exactly one weekday")
	}
	return nil
}

func parseUntil(v string) (time.Time, UntilForm, error) {
	v = strings.ToUpper(v)
	switch len(v) {
	case len(untilDateLayout):
		t, err := time.Parse(untilDateLayout, v)
		return t, UntilDate, err
	case len(untilFloatingLayout):
		t, err := time.Parse(untilFloatingLayout, v)
		return t, UntilFloating, err
	case len(untilUTCLayout):
		t, err := time.Parse(untilUTCLayout, v)
		return t, UntilUTC, err
	}
	return time.Time{}, UntilNone, fmt.Errorf("unrecognized UNTIL %q", v)
}

func parseByDay(tok Token) ([]Weekday, error) {
	seen := make(map[Weekday]bool)
	var days []Weekday
	for _, part := range strings.Split(tok.Value, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		d, ok := parseWeekday(code)
		if !ok {
			return nil, invalid(tok.Raw, "unknown weekday %q", code)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return nil, invalid(tok.Raw, "BYDAY needs at least one weekday")
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// Bounded reports whether the rule ends on its own.
func (r *Rule) Bounded() bool {
	return r.Count > 0 || r.UntilForm != UntilNone
}

// UntilIn resolves UNTIL against the series zone. Date-only values resolve to
// 23:59:59 on that date. The second result is false when the rule has no
// UNTIL.
func (r *Rule) UntilIn(loc *time.Location) (time.Time, bool) {
	u := r.Until
	switch r.UntilForm {
	case UntilDate:
		return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, loc), true
	case UntilFloating:
		return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, loc), true
	case UntilUTC:
		return u.In(loc), true
	}
	return time.Time{}, false
}

// EndingBefore returns a copy of r that produces no instant at or after t.
// COUNT is replaced by an absolute UNTIL one second before t; an existing
// UNTIL is kept when it is already earlier.
func (r *Rule) EndingBefore(t time.Time) *Rule {
	cut := t.Add(-time.Second).UTC().Truncate(time.Second)
	out := r.clone()
	if until, ok := r.UntilIn(t.Location()); ok && until.Before(cut) {
		return out
	}
	out.Count = 0
	out.Until = cut
	out.UntilForm = UntilUTC
	return out
}

func (r *Rule) clone() *Rule {
	out := *r
	out.ByDay = append([]Weekday(nil), r.ByDay...)
	return &out
}

// String renders the canonical wire form:
//
//	FREQ=..;INTERVAL=n[;BYDAY=..][;BYMONTHDAY=n][;BYSETPOS=n][;COUNT=n|;UNTIL=..]
//
// Parse(r.String()) yields an equal rule.
func (r *Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FREQ=%s;INTERVAL=%d", r.Freq, r.Interval)
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			codes[i] = d.String()
		}
		b.WriteString(";BYDAY=" + strings.Join(codes, ","))
	}
	if r.ByMonthDay != 0 {
		fmt.Fprintf(&b, ";BYMONTHDAY=%d", r.ByMonthDay)
	}
	if r.BySetPos != 0 {
		fmt.Fprintf(&b, ";BYSETPOS=%d", r.BySetPos)
	}
	if r.Count > 0 {
		fmt.Fprintf(&b, ";COUNT=%d", r.Count)
	}
	switch r.UntilForm {
	case UntilDate:
		b.WriteString(";UNTIL=" + r.Until.Format(untilDateLayout))
	case UntilFloating:
		b.WriteString(";UNTIL=" + r.Until.Format(untilFloatingLayout))
	case UntilUTC:
		b.WriteString(";UNTIL=" + r.Until.UTC().Format(untilUTCLayout))
	}
	return b.String()
}

// Summary renders a short English description, e.g.
// "Every 2 weeks on Mon, Wed; ends after 10 events".
func (r *Rule) Summary() string {
	unit := map[Frequency]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}[r.Freq]
	var b strings.Builder
	if r.Interval == 1 {
		b.WriteString("Every " + unit)
	} else {
		fmt.Fprintf(&b, "Every %d %ss", r.Interval, unit)
	}

	if len(r.ByDay) > 0 {
		names := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			names[i] = weekdayNames[d]
		}
		if r.BySetPos != 0 {
			fmt.Fprintf(&b, " on the %s %s", ordinal(r.BySetPos), names[0])
		} else {
			b.WriteString(" on " + strings.Join(names, ", "))
		}
	}
	if r.ByMonthDay > 0 {
		fmt.Fprintf(&b, " on day %d", r.ByMonthDay)
	} else if r.ByMonthDay < 0 {
		fmt.Fprintf(&b, " on day %d from the end", -r.ByMonthDay)
	}

	switch {
	case r.Count > 0:
		fmt.Fprintf(&b, "; ends after %d events", r.Count)
	case r.UntilForm != UntilNone:
		fmt.Fprintf(&b, "; ends on %s", r.Until.Format("2006-01-02"))
	}
	return b.String()
}

func ordinal(n int) string {
	if n == -1 {
		return "last"
	}
	if n < 0 {
		return fmt.Sprintf("%s-to-last", ordinal(-n))
	}
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	}
	return fmt.Sprintf("%dth", n)
}
