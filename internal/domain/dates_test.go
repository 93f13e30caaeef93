package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookableDates_WindowAndHolidays(t *testing.T) {
	ev := &Event{
		Kind:          EventDaily,
		MinDaysNotice: 1,
		MaxDaysAhead:  7,
	}
	holidays := []Holiday{{Name: "closed", StartDate: "2026-06-03", EndDate: "2026-06-04"}}
	today := time.Date(2026, 6, 1, 15, 30, 0, 0, time.UTC)

	dates := BookableDates(ev, holidays, today)

	assert.Equal(t, []string{
		"2026-06-02",
		"2026-06-05",
		"2026-06-06",
		"2026-06-07",
		"2026-06-08",
	}, dates)
}

func TestBookableDates_Weekdays(t *testing.T) {
	days, err := ParseWeekdays("Sat, sunday")
	require.NoError(t, err)

	ev := &Event{Kind: EventDaily, MaxDaysAhead: 13, BookableDays: days}
	// 2026-06-01 is a Monday.
	today := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, []string{"2026-06-06", "2026-06-07", "2026-06-13", "2026-06-14"}, BookableDates(ev, nil, today))
}

func TestBookableDates_StandardEventHasNone(t *testing.T) {
	ev := &Event{Kind: EventStandard}
	assert.Empty(t, BookableDates(ev, nil, time.Now()))
}

func TestIsBookable(t *testing.T) {
	ev := &Event{Kind: EventDaily, MinDaysNotice: 2, MaxDaysAhead: 30}
	holidays := []Holiday{{StartDate: "2026-06-10", EndDate: "2026-06-10"}}
	today := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		date string
		want bool
	}{
		{"2026-06-01", false},
		{"2026-06-02", false},
		{"2026-06-03", true},
		{"2026-06-10", false},
		{"2026-07-01", true},
		{"2026-07-02", false},
		{"not-a-date", false},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBookable(ev, holidays, today, tt.date))
		})
	}
}

func TestParseWeekdays_Invalid(t *testing.T) {
	_, err := ParseWeekdays("Mon,Funday")
	assert.Error(t, err)
}

func TestFormatWeekdays_RoundTrip(t *testing.T) {
	days := []time.Weekday{time.Monday, time.Friday}
	parsed, err := ParseWeekdays(FormatWeekdays(days))
	require.NoError(t, err)
	assert.Equal(t, days, parsed)
}
