package calendar

import (
	"fmt"
	"strings"
	"time"
)

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseInstant reads an ISO-8601 instant. Values with an offset or Z are
// taken as absolute; values without one are wall-clock times in loc. The
// result is expressed in loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as an ISO-8601 date or date-time", s)
}

// MonthRange returns [first of month, first of next month) for the month
// containing now, in loc.
func MonthRange(now time.Time, loc *time.Location) (time.Time, time.Time) {
	now = now.In(loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
