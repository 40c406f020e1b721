package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens, err := Tokenize("RRULE:freq=weekly; byday=MO,WE ;COUNT=10;")
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	assert.Equal(t, KeyFreq, tokens[0].Key)
	assert.Equal(t, "weekly", tokens[0].Value)
	assert.Equal(t, KeyByDay, tokens[1].Key)
	assert.Equal(t, "byday=MO,WE", tokens[1].Raw)
	assert.Equal(t, KeyCount, tokens[2].Key)
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fragment string
	}{
		{"empty", "", ""},
		{"only separators", ";;", ""},
		{"missing equals", "FREQ=DAILY;COUNT", "COUNT"},
		{"double equals", "FREQ=DAILY=WEEKLY", "FREQ=DAILY=WEEKLY"},
		{"unknown key", "FREQ=DAILY;BYHOUR=9", "BYHOUR=9"},
		{"duplicate key", "FREQ=DAILY;FREQ=WEEKLY", "FREQ=WEEKLY"},
		{"empty value", "FREQ=", "FREQ="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			require.Error(t, err)

			var re *InvalidRuleError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.fragment, re.Fragment)
		})
	}
}

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		canonical string
	}{
		{"daily default interval", "FREQ=DAILY", "FREQ=DAILY;INTERVAL=1"},
		{"frequency alias", "FREQ=W;INTERVAL=2", "FREQ=WEEKLY;INTERVAL=2"},
		{"weekly byday sorted and deduplicated", "FREQ=WEEKLY;BYDAY=WE,MO,WE;COUNT=10", "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE;COUNT=10"},
		{"monthly by month day", "FREQ=MONTHLY;BYMONTHDAY=15;COUNT=3", "FREQ=MONTHLY;INTERVAL=1;BYMONTHDAY=15;COUNT=3"},
		{"monthly negative month day", "FREQ=MONTHLY;BYMONTHDAY=-1", "FREQ=MONTHLY;INTERVAL=1;BYMONTHDAY=-1"},
		{"monthly last friday", "FREQ=MONTHLY;BYDAY=FR;BYSETPOS=-1", "FREQ=MONTHLY;INTERVAL=1;BYDAY=FR;BYSETPOS=-1"},
		{"until date", "FREQ=DAILY;UNTIL=20240110", "FREQ=DAILY;INTERVAL=1;UNTIL=20240110"},
		{"until floating", "FREQ=DAILY;UNTIL=20240110T120000", "FREQ=DAILY;INTERVAL=1;UNTIL=20240110T120000"},
		{"until utc lowercase", "FREQ=DAILY;UNTIL=20240110t120000z", "FREQ=DAILY;INTERVAL=1;UNTIL=20240110T120000Z"},
		{"yearly", "RRULE:FREQ=YEARLY;COUNT=2", "FREQ=YEARLY;INTERVAL=1;COUNT=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.canonical, r.String())

			// The canonical form is a fixed point.
			again, err := Parse(r.String())
			require.NoError(t, err)
			assert.Equal(t, r.String(), again.String())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fragment string
	}{
		{"missing freq", "COUNT=3", ""},
		{"bad freq", "FREQ=HOURLY", "FREQ=HOURLY"},
		{"zero interval", "FREQ=DAILY;INTERVAL=0", "INTERVAL=0"},
		{"negative interval", "FREQ=DAILY;INTERVAL=-2", "INTERVAL=-2"},
		{"non numeric count", "FREQ=DAILY;COUNT=ten", "COUNT=ten"},
		{"count and until", "FREQ=DAILY;COUNT=3;UNTIL=20240110", "UNTIL=20240110"},
		{"bad until", "FREQ=DAILY;UNTIL=2024-01-10", "UNTIL=2024-01-10"},
		{"impossible until date", "FREQ=DAILY;UNTIL=20240231", "UNTIL=20240231"},
		{"unknown weekday", "FREQ=WEEKLY;BYDAY=MO,XX", "BYDAY=MO,XX"},
		{"ordinal weekday", "FREQ=WEEKLY;BYDAY=1MO", "BYDAY=1MO"},
		{"byday on daily", "FREQ=DAILY;BYDAY=MO", "BYDAY=MO"},
		{"byday on yearly", "FREQ=YEARLY;BYDAY=MO", "BYDAY=MO"},
		{"bymonthday on weekly", "FREQ=WEEKLY;BYMONTHDAY=3", "BYMONTHDAY=3"},
		{"bysetpos on weekly", "FREQ=WEEKLY;BYDAY=MO;BYSETPOS=1", "BYSETPOS=1"},
		{"monthly without selector", "FREQ=MONTHLY;COUNT=3", "FREQ=MONTHLY"},
		{"monthly both selectors", "FREQ=MONTHLY;BYMONTHDAY=3;BYDAY=MO;BYSETPOS=1", "BYMONTHDAY=3"},
		{"monthly byday without setpos", "FREQ=MONTHLY;BYDAY=MO", "BYDAY=MO"},
		{"monthly setpos without byday", "FREQ=MONTHLY;BYSETPOS=2", "BYSETPOS=2"},
		{"monthly two weekdays", "FREQ=MONTHLY;BYDAY=MO,TU;BYSETPOS=1", "BYDAY=MO,TU"},
		{"bymonthday out of range", "FREQ=MONTHLY;BYMONTHDAY=32", "BYMONTHDAY=32"},
		{"bysetpos out of range", "FREQ=MONTHLY;BYDAY=MO;BYSETPOS=6", "BYSETPOS=6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.input)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.True(t, IsInvalidRule(err))

			var re *InvalidRuleError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.fragment, re.Fragment)
			assert.NotEmpty(t, re.Reason)
		})
	}
}

func TestRule_UntilIn(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	r, err := Parse("FREQ=DAILY;UNTIL=20240110")
	require.NoError(t, err)
	until, ok := r.UntilIn(ny)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 10, 23, 59, 59, 0, ny), until)

	r, err = Parse("FREQ=DAILY;UNTIL=20240110T150000Z")
	require.NoError(t, err)
	until, ok = r.UntilIn(ny)
	require.True(t, ok)
	assert.True(t, until.Equal(time.Date(2024, 1, 10, 10, 0, 0, 0, ny)))

	r, err = Parse("FREQ=DAILY")
	require.NoError(t, err)
	_, ok = r.UntilIn(ny)
	assert.False(t, ok)
	assert.False(t, r.Bounded())
}

func TestRule_EndingBefore(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	split := time.Date(2024, 1, 15, 9, 0, 0, 0, ny)

	r, err := Parse("FREQ=WEEKLY;BYDAY=MO;COUNT=10")
	require.NoError(t, err)

	cut := r.EndingBefore(split)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO;UNTIL=20240115T135959Z", cut.String())
	assert.Equal(t, 10, r.Count, "original rule is not modified")

	// An earlier UNTIL already excludes the split.
	early, err := Parse("FREQ=DAILY;UNTIL=20240101")
	require.NoError(t, err)
	assert.Equal(t, early.String(), early.EndingBefore(split).String())
}

func TestRule_Summary(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"FREQ=DAILY", "Every day"},
		{"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=10", "Every 2 weeks on Mon, Wed; ends after 10 events"},
		{"FREQ=MONTHLY;BYDAY=FR;BYSETPOS=-1", "Every month on the last Fri"},
		{"FREQ=MONTHLY;BYMONTHDAY=15;UNTIL=20241231", "Every month on day 15; ends on 2024-12-31"},
	}
	for _, tt := range tests {
		r, err := Parse(tt.rule)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.Summary(), tt.rule)
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}
