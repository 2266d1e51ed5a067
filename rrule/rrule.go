// Package rrule adapts an RFC-5545 recurrence library to the engine's
// Recurrence contract: a pure, timezone-anchor-stable "is an instance due
// on this day" predicate. Rule expansion semantics live entirely in the
// library; this package only anchors rules in UTC and answers the one
// question the engine asks.
package rrule

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/elcuervo/otq"
)

// Checker answers IsDueOn for tasks carrying either an RRULE string or a
// legacy "every ..." rule. Parsed rules are cached per rule text and
// anchor day.
type Checker struct {
	mu    sync.Mutex
	rules map[string]*rrule.RRule
}

func NewChecker() *Checker {
	return &Checker{rules: make(map[string]*rrule.RRule)}
}

// IsDueOn reports whether an instance of the task falls due on the given
// UTC calendar day. Tasks without a parsable rule or any date anchor are
// never due.
func (c *Checker) IsDueOn(task *otq.Task, day time.Time) bool {
	anchor, ok := taskAnchor(task)
	if !ok {
		return false
	}

	rule, err := c.rule(task.Recurrence, anchor)
	if err != nil {
		return false
	}

	day = day.UTC().Truncate(24 * time.Hour)
	if day.Before(anchor) {
		return false
	}
	occurrences := rule.Between(day, day.Add(24*time.Hour-time.Nanosecond), true)
	return len(occurrences) > 0
}

// taskAnchor picks the rule's DTSTART: the due day when present, else the
// creation day.
func taskAnchor(task *otq.Task) (time.Time, bool) {
	if task.Due != "" {
		if t, err := time.Parse("2006-01-02", task.Due[:min(10, len(task.Due))]); err == nil {
			return t.UTC(), true
		}
	}
	if !task.CreatedAt.IsZero() {
		created := task.CreatedAt.UTC()
		return time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func (c *Checker) rule(text string, anchor time.Time) (*rrule.RRule, error) {
	key := fmt.Sprintf("%d|%s", anchor.Unix(), text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if rule, ok := c.rules[key]; ok {
		return rule, nil
	}

	normalized, err := normalizeRule(text)
	if err != nil {
		return nil, err
	}
	rule, err := rrule.StrToRRule(normalized)
	if err != nil {
		return nil, err
	}
	rule.DTStart(anchor)

	c.rules[key] = rule
	return rule, nil
}

var weekdayCodes = map[string]string{
	"monday": "MO", "tuesday": "TU", "wednesday": "WE", "thursday": "TH",
	"friday": "FR", "saturday": "SA", "sunday": "SU",
}

// normalizeRule turns a rule text into RRULE syntax. RRULE text passes
// through; legacy rules ("every day", "every 2 weeks", "every week on
// monday") are translated.
func normalizeRule(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty recurrence rule")
	}

	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, "RRULE:") {
		return strings.TrimPrefix(upper, "RRULE:"), nil
	}
	if strings.HasPrefix(upper, "FREQ=") {
		return upper, nil
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) < 2 || words[0] != "every" {
		return "", fmt.Errorf("unrecognized recurrence rule %q", text)
	}
	words = words[1:]

	interval := 1
	if n, err := strconv.Atoi(words[0]); err == nil && n > 0 {
		interval = n
		words = words[1:]
	}
	if len(words) == 0 {
		return "", fmt.Errorf("unrecognized recurrence rule %q", text)
	}

	var freq string
	switch strings.TrimSuffix(words[0], "s") {
	case "day":
		freq = "DAILY"
	case "week":
		freq = "WEEKLY"
	case "month":
		freq = "MONTHLY"
	case "year":
		freq = "YEARLY"
	default:
		if code, ok := weekdayCodes[words[0]]; ok {
			// "every monday" style.
			return fmt.Sprintf("FREQ=WEEKLY;INTERVAL=%d;BYDAY=%s", interval, code), nil
		}
		return "", fmt.Errorf("unrecognized recurrence rule %q", text)
	}

	rule := fmt.Sprintf("FREQ=%s;INTERVAL=%d", freq, interval)

	// Optional "on <weekday>[, <weekday>...]" tail for weekly rules.
	if freq == "WEEKLY" && len(words) >= 3 && words[1] == "on" {
		var days []string
		for _, w := range words[2:] {
			w = strings.Trim(w, ",")
			if code, ok := weekdayCodes[w]; ok {
				days = append(days, code)
			}
		}
		if len(days) > 0 {
			rule += ";BYDAY=" + strings.Join(days, ",")
		}
	}
	return rule, nil
}
