package otq

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Title comparison is locale-aware, not byte order.
var textCollator = collate.New(language.Und)

func compareText(a, b string) int {
	return textCollator.CompareString(a, b)
}

// fallbackChain is the fixed secondary ordering applied when the primary
// key ties. The key already used as primary is skipped.
var fallbackChain = []SortKey{SortByScheduled, SortByDue, SortByPriority, SortByTitle}

// sorter orders task lists. Stable with respect to equal keys: ties run
// through the fallback chain, and only exact duplicates remain tied.
type sorter struct {
	ev          *evaluator
	fields      *fieldTable
	statusOrder map[string]int
}

func newSorter(ev *evaluator, fields *fieldTable, statuses []StatusDef) *sorter {
	s := &sorter{ev: ev, fields: fields, statusOrder: make(map[string]int, len(statuses))}
	for i, st := range statuses {
		s.statusOrder[st.Key] = i
	}
	return s
}

// Sort returns a new slice ordered by the primary key with the fallback
// chain breaking ties. Direction is applied by negating the final
// comparison; the chain's internal ordering is never reversed on its own.
func (s *sorter) Sort(tasks []*Task, key SortKey, dir SortDirection) []*Task {
	sorted := make([]*Task, len(tasks))
	copy(sorted, tasks)

	slices.SortStableFunc(sorted, func(a, b *Task) int {
		c := s.compareChain(a, b, key)
		if dir == SortDesc {
			return -c
		}
		return c
	})
	return sorted
}

func (s *sorter) compareChain(a, b *Task, primary SortKey) int {
	if c := s.compare(a, b, primary); c != 0 {
		return c
	}
	for _, key := range fallbackChain {
		if key == primary {
			continue
		}
		if c := s.compare(a, b, key); c != 0 {
			return c
		}
	}
	return 0
}

// compare orders two tasks by a single key, negative when a sorts first.
func (s *sorter) compare(a, b *Task, key SortKey) int {
	if id, ok := sortKeyField(key); ok {
		def, found := s.fields.lookup(id)
		if !found {
			return 0
		}
		return s.fields.compareField(def, a, b)
	}

	switch key {
	case SortByOrder:
		return compareNumberPtr(a.Order, b.Order)
	case SortByDue:
		return compareDays(a.Due, b.Due)
	case SortByScheduled:
		return compareDays(a.Scheduled, b.Scheduled)
	case SortByPriority:
		// Weight comparison is inverted relative to the raw field:
		// ascending direction still puts the most urgent task first.
		return cmp.Compare(s.ev.priorityWeight(b.Priority), s.ev.priorityWeight(a.Priority))
	case SortByTitle:
		return compareText(a.Title, b.Title)
	case SortByStatus:
		return cmp.Compare(s.statusRank(a.Status), s.statusRank(b.Status))
	case SortByCreated:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case SortByModified:
		return compareTimes(a.ModifiedAt, b.ModifiedAt)
	case SortByPoints:
		return compareNumberPtr(a.Points, b.Points)
	}
	return 0
}

func (s *sorter) statusRank(key string) int {
	if r, ok := s.statusOrder[key]; ok {
		return r
	}
	// Undeclared statuses sort after declared ones.
	return len(s.statusOrder)
}

// sortKeyField extracts the field id from a "user:<id>" sort key.
func sortKeyField(key SortKey) (string, bool) {
	if strings.HasPrefix(string(key), userPrefix) {
		return strings.TrimPrefix(string(key), userPrefix), true
	}
	return "", false
}

func compareNumberPtr(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	}
	return a.Compare(b)
}
