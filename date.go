package otq

import (
	"strings"
	"time"
)

// Accepted layouts for due/scheduled values, tried in order. Date-time
// stamps may carry an offset; date-only values are taken as-is.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// anchorDay converts a date or date-time string to its UTC calendar day:
// midnight UTC of the day the timestamp falls on once shifted to UTC. Every
// place a date becomes a compare or bucket key goes through here; local-time
// formatting drifts a day around midnight in non-UTC timezones.
func anchorDay(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		return startOfDay(t), true
	}
	return time.Time{}, false
}

// startOfDay truncates a timestamp to midnight UTC of its UTC calendar day.
func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// dayKey renders the UTC calendar day of a timestamp as YYYY-MM-DD.
func dayKey(t time.Time) string {
	return startOfDay(t).Format("2006-01-02")
}

// compareDays orders two date strings by UTC calendar day. Unparsable or
// empty values sort after valid ones; two invalid values tie.
func compareDays(a, b string) int {
	da, okA := anchorDay(a)
	db, okB := anchorDay(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	return da.Compare(db)
}

// IsOverdue reports whether date falls strictly before ref's UTC calendar
// day. Empty or unparsable dates are never overdue.
func IsOverdue(date string, ref time.Time) bool {
	day, ok := anchorDay(date)
	if !ok {
		return false
	}
	return day.Before(startOfDay(ref))
}

// resolveDay turns a relative day name or a literal date into a UTC calendar
// day relative to ref.
func resolveDay(value string, ref time.Time) (time.Time, bool) {
	today := startOfDay(ref)
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	}
	return anchorDay(value)
}
