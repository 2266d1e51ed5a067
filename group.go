package otq

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// OrderedMap maintains insertion order for keys.
type OrderedMap[K cmp.Ordered, V any] struct {
	data  map[K]V
	order []K
}

func NewOrderedMap[K cmp.Ordered, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{
		data: make(map[K]V),
	}
}

func (m *OrderedMap[K, V]) Set(key K, value V) {
	if _, exists := m.data[key]; !exists {
		m.order = append(m.order, key)
	}
	m.data[key] = value
}

func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *OrderedMap[K, V]) Keys() []K {
	return m.order
}

func (m *OrderedMap[K, V]) Len() int {
	return len(m.order)
}

// Bucket names shared across group keys.
const (
	bucketAll        = "all"
	bucketNoProject  = "No Project"
	bucketNoContext  = "none"
	bucketNoPriority = "No priority"
	noValueBucket    = "No value"
	unknownBucket    = "Unknown"
)

// Date bucket names in their fixed semantic sequence. The overdue and
// no-date labels depend on which date property is being bucketed.
const (
	bucketOverdue       = "Overdue"
	bucketPastScheduled = "Past scheduled"
	bucketToday         = "Today"
	bucketTomorrow      = "Tomorrow"
	bucketThisWeek      = "This week"
	bucketLater         = "Later"
	bucketNoDue         = "No due date"
	bucketNoScheduled   = "No scheduled date"
)

// Grouping is the ordered bucketName -> ordered tasks mapping returned to
// callers.
type Grouping struct {
	buckets *OrderedMap[string, []*Task]
}

func newGrouping() *Grouping {
	return &Grouping{buckets: NewOrderedMap[string, []*Task]()}
}

// Names returns the bucket names in display order.
func (g *Grouping) Names() []string { return g.buckets.Keys() }

// Tasks returns the ordered tasks of a bucket.
func (g *Grouping) Tasks(name string) []*Task {
	tasks, _ := g.buckets.Get(name)
	return tasks
}

// Len returns the number of buckets.
func (g *Grouping) Len() int { return g.buckets.Len() }

// Total counts tasks across all buckets, respecting multiplicity.
func (g *Grouping) Total() int {
	n := 0
	for _, name := range g.buckets.Keys() {
		tasks, _ := g.buckets.Get(name)
		n += len(tasks)
	}
	return n
}

func (g *Grouping) add(name string, task *Task) {
	existing, _ := g.buckets.Get(name)
	g.buckets.Set(name, append(existing, task))
}

// grouper partitions a sorted task list into named buckets and orders the
// buckets.
type grouper struct {
	ev       *evaluator
	fields   *fieldTable
	statuses []StatusDef

	recurrence Recurrence

	// When false, completed tasks are never bucketed as overdue and fall
	// through to the no-date bucket instead.
	completedOverdue bool
}

// Group partitions tasks, which must already be in sort order; relative
// order inside every bucket is preserved. sortKey and dir steer bucket
// order when the group key equals the active sort key.
func (gr *grouper) Group(tasks []*Task, key GroupKey, ref time.Time, sortKey SortKey, dir SortDirection) *Grouping {
	out := newGrouping()

	if key == GroupByNone || key == "" {
		out.buckets.Set(bucketAll, append([]*Task(nil), tasks...))
		return out
	}

	for _, task := range tasks {
		for _, name := range gr.bucketsFor(task, key, ref) {
			out.add(name, task)
		}
	}

	gr.orderBuckets(out, key, sortKey, dir)
	return out
}

// bucketsFor names the buckets a task lands in. Project grouping is the one
// many-to-many case; every other key assigns exactly one bucket.
func (gr *grouper) bucketsFor(task *Task, key GroupKey, ref time.Time) []string {
	if id, ok := groupKeyField(key); ok {
		if def, found := gr.fields.lookup(id); found {
			return []string{gr.fields.bucketValue(def, task)}
		}
		return []string{unknownBucket}
	}

	switch key {
	case GroupByStatus:
		return []string{gr.statusLabel(task.Status)}
	case GroupByPriority:
		if task.Priority == "" {
			return []string{bucketNoPriority}
		}
		return []string{task.Priority}
	case GroupByContext:
		for _, c := range task.Contexts {
			if strings.TrimSpace(c) != "" {
				return []string{c}
			}
		}
		return []string{bucketNoContext}
	case GroupByProject:
		var names []string
		for _, p := range task.Projects {
			if strings.TrimSpace(p) != "" {
				names = append(names, p)
			}
		}
		if len(names) == 0 {
			return []string{bucketNoProject}
		}
		return names
	case GroupByDue:
		return []string{gr.dateBucket(task, task.Due, ref, bucketOverdue, bucketNoDue)}
	case GroupByScheduled:
		return []string{gr.dateBucket(task, task.Scheduled, ref, bucketPastScheduled, bucketNoScheduled)}
	case GroupByFolder:
		return []string{task.Path.Folder()}
	}
	return []string{unknownBucket}
}

// dateBucket derives the calendar bucket for a date value, completion
// aware: a past date counts as overdue only while the task is incomplete.
// Recurring tasks are asked whether an instance is due on the reference day
// before the anchor date is consulted.
func (gr *grouper) dateBucket(task *Task, value string, ref time.Time, overdueName, noneName string) string {
	today := startOfDay(ref)

	if task.IsRecurring() && gr.recurrence != nil && gr.recurrence.IsDueOn(task, today) {
		if !gr.ev.isCompleted(task, ref) {
			return bucketToday
		}
	}

	day, ok := anchorDay(value)
	if !ok {
		return noneName
	}

	days := int(day.Sub(today).Hours() / 24)
	switch {
	case days < 0:
		if gr.ev.isCompleted(task, ref) && !gr.completedOverdue {
			return noneName
		}
		return overdueName
	case days == 0:
		return bucketToday
	case days == 1:
		return bucketTomorrow
	case days <= 7:
		return bucketThisWeek
	default:
		return bucketLater
	}
}

func (gr *grouper) statusLabel(key string) string {
	for _, s := range gr.statuses {
		if s.Key == key {
			if s.Label != "" {
				return s.Label
			}
			return s.Key
		}
	}
	if key == "" {
		return noValueBucket
	}
	return key
}

// orderBuckets rewrites the grouping's key order per the group key's rule.
// When the group key is also the active sort key, bucket order follows the
// sort direction, including reversal for desc.
func (gr *grouper) orderBuckets(g *Grouping, key GroupKey, sortKey SortKey, dir SortDirection) {
	names := append([]string(nil), g.buckets.Keys()...)

	switch {
	case key == GroupByPriority:
		slices.SortStableFunc(names, func(a, b string) int {
			return cmp.Compare(gr.ev.priorityWeight(b), gr.ev.priorityWeight(a))
		})
	case key == GroupByStatus:
		rank := make(map[string]int, len(gr.statuses))
		for i, s := range gr.statuses {
			rank[gr.statusLabel(s.Key)] = i
		}
		slices.SortStableFunc(names, func(a, b string) int {
			return cmp.Compare(statusBucketRank(rank, a), statusBucketRank(rank, b))
		})
	case key == GroupByDue || key == GroupByScheduled:
		slices.SortStableFunc(names, func(a, b string) int {
			return cmp.Compare(dateBucketRank(a), dateBucketRank(b))
		})
	case key == GroupByProject:
		slices.SortStableFunc(names, func(a, b string) int {
			return compareProjectBuckets(a, b)
		})
	default:
		if id, ok := groupKeyField(key); ok {
			if def, found := gr.fields.lookup(id); found {
				slices.SortStableFunc(names, func(a, b string) int {
					return compareFieldBuckets(def.Kind, a, b)
				})
				break
			}
		}
		slices.SortStableFunc(names, compareText)
	}

	if string(key) == string(sortKey) && dir == SortDesc {
		slices.Reverse(names)
	}

	reordered := NewOrderedMap[string, []*Task]()
	for _, name := range names {
		tasks, _ := g.buckets.Get(name)
		reordered.Set(name, tasks)
	}
	g.buckets = reordered
}

func statusBucketRank(rank map[string]int, name string) int {
	if r, ok := rank[name]; ok {
		return r
	}
	return len(rank)
}

var dateBucketOrder = []string{
	bucketOverdue, bucketPastScheduled, bucketToday, bucketTomorrow,
	bucketThisWeek, bucketLater, bucketNoDue, bucketNoScheduled,
}

func dateBucketRank(name string) int {
	for i, b := range dateBucketOrder {
		if b == name {
			return i
		}
	}
	return len(dateBucketOrder)
}

func compareProjectBuckets(a, b string) int {
	switch {
	case a == bucketNoProject && b == bucketNoProject:
		return 0
	case a == bucketNoProject:
		return 1
	case b == bucketNoProject:
		return -1
	}
	return compareText(a, b)
}

// compareFieldBuckets orders user-field buckets per the field type: numeric
// descending, boolean true before false, date ascending, else alphabetical.
// The no-value and unknown buckets always land last.
func compareFieldBuckets(kind FieldKind, a, b string) int {
	sa, sb := fieldBucketSpecial(a), fieldBucketSpecial(b)
	if sa != sb {
		return cmp.Compare(sa, sb)
	}
	if sa > 0 {
		return compareText(a, b)
	}

	switch kind {
	case FieldNumber:
		na, okA := parseNumber(a)
		nb, okB := parseNumber(b)
		if okA && okB {
			return cmp.Compare(nb, na)
		}
	case FieldBoolean:
		ba, okA := parseBool(a)
		bb, okB := parseBool(b)
		if okA && okB {
			switch {
			case ba == bb:
				return 0
			case ba:
				return -1
			}
			return 1
		}
	case FieldDate:
		return compareDays(a, b)
	}
	return compareText(a, b)
}

func fieldBucketSpecial(name string) int {
	switch name {
	case noValueBucket:
		return 1
	case unknownBucket:
		return 2
	}
	return 0
}

// groupKeyField extracts the field id from a "user:<id>" group key.
func groupKeyField(key GroupKey) (string, bool) {
	if strings.HasPrefix(string(key), userPrefix) {
		return strings.TrimPrefix(string(key), userPrefix), true
	}
	return "", false
}
