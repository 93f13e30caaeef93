package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxDaysAhead bounds the booking window of daily events that do not
// configure one.
const DefaultMaxDaysAhead = 90

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays parses a comma separated list such as "Mon,Tue,Sat".
func ParseWeekdays(s string) ([]time.Weekday, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var out []time.Weekday
	for _, part := range strings.Split(s, ",") {
		key := strings.ToLower(strings.TrimSpace(part))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		out = append(out, d)
	}

	return out, nil
}

// FormatWeekdays is the inverse of ParseWeekdays.
func FormatWeekdays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, d.String()[:3])
	}
	return strings.Join(parts, ",")
}

// BookableDates lists the dates a daily event can be booked for, relative to
// today. Dates falling inside a holiday range or on a weekday the event does
// not run are excluded. Standard events have no bookable dates.
func BookableDates(ev *Event, holidays []Holiday, today time.Time) []string {
	if ev == nil || !ev.IsDaily() {
		return nil
	}

	start := truncateDay(today).AddDate(0, 0, max(ev.MinDaysNotice, 0))
	maxAhead := ev.MaxDaysAhead
	if maxAhead <= 0 {
		maxAhead = DefaultMaxDaysAhead
	}
	end := truncateDay(today).AddDate(0, 0, maxAhead)

	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !runsOn(ev, d.Weekday()) {
			continue
		}
		ds := d.Format(DateLayout)
		if inHoliday(ds, holidays) {
			continue
		}
		out = append(out, ds)
	}

	return out
}

// IsBookable reports whether date is one of BookableDates.
func IsBookable(ev *Event, holidays []Holiday, today time.Time, date string) bool {
	d, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil || ev == nil || !ev.IsDaily() {
		return false
	}

	base := truncateDay(today)
	if d.Before(base.AddDate(0, 0, max(ev.MinDaysNotice, 0))) {
		return false
	}

	maxAhead := ev.MaxDaysAhead
	if maxAhead <= 0 {
		maxAhead = DefaultMaxDaysAhead
	}
	if d.After(base.AddDate(0, 0, maxAhead)) {
		return false
	}

	return runsOn(ev, d.Weekday()) && !inHoliday(date, holidays)
}

func runsOn(ev *Event, wd time.Weekday) bool {
	if len(ev.BookableDays) == 0 {
		return true
	}
	for _, d := range ev.BookableDays {
		if d == wd {
			return true
		}
	}
	return false
}

// YYYY-MM-DD compares correctly as a string.
func inHoliday(date string, holidays []Holiday) bool {
	for _, h := range holidays {
		if date >= h.StartDate && date <= h.EndDate {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
