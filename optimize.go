package otq

import (
	"fmt"
	"time"
)

// optimizer statically analyzes a filter tree for safe chances to shrink
// the candidate set using the index before full evaluation. Its one
// invariant: the returned set is always a superset of the true match set.
// Whenever the tree shape is not provably safe it answers "all paths".
type optimizer struct {
	index TaskIndex
	cache *lookupCache
}

// Candidates proposes the path set to materialize for a query. The second
// return reports whether the set was actually narrowed; false means the
// caller got the full index.
func (o *optimizer) Candidates(q Query, ref time.Time) (PathSet, bool) {
	if q.Root == nil {
		return o.index.AllPaths(), false
	}

	// An indexable condition reachable through an or-group could be
	// excluded by the index lookup even though a sibling branch matches,
	// silently dropping valid results. One such condition disables
	// optimization for the whole tree.
	if hasIndexableUnderOr(q.Root, false, ref) {
		return o.index.AllPaths(), false
	}

	indexable := collectIndexable(q.Root, ref)
	switch len(indexable) {
	case 0:
		return o.index.AllPaths(), false
	case 1:
		set := o.lookup(indexable[0], ref)
		if set == nil {
			return o.index.AllPaths(), false
		}
		return set, true
	}

	// Multiple indexable conditions intersect only when every one is a
	// direct child of an and-root; any deeper shape falls back.
	if q.Root.Conjunction != ConjAnd || !allDirectChildren(q.Root, indexable) {
		return o.index.AllPaths(), false
	}

	result := o.lookup(indexable[0], ref)
	if result == nil {
		return o.index.AllPaths(), false
	}
	for _, c := range indexable[1:] {
		set := o.lookup(c, ref)
		if set == nil {
			return o.index.AllPaths(), false
		}
		result = result.Intersect(set)
	}
	return result, true
}

// indexable reports whether a condition's property/operator/value
// combination has a precomputed lookup set: status equality, due or
// scheduled date equality, and due-before-today via the overdue set.
func indexable(c *Condition, ref time.Time) bool {
	if !c.Complete() {
		return false
	}
	switch c.Property {
	case PropStatus:
		return c.Operator == OpIs && firstText(c.Value) != ""
	case PropDue, PropScheduled:
		switch c.Operator {
		case OpIs:
			_, ok := resolveDay(firstText(c.Value), ref)
			return ok
		case OpBefore:
			// Only the overdue set serves range lookups, and the index
			// anchors it to the host's current day. A reference day on any
			// other day would make the set exclude true matches, so the
			// shortcut applies only when the two days agree.
			return c.Property == PropDue && isToday(firstText(c.Value), ref) &&
				startOfDay(ref).Equal(startOfDay(time.Now()))
		}
	}
	return false
}

func isToday(value string, ref time.Time) bool {
	day, ok := resolveDay(value, ref)
	return ok && day.Equal(startOfDay(ref))
}

func hasIndexableUnderOr(g *Group, underOr bool, ref time.Time) bool {
	underOr = underOr || g.Conjunction == ConjOr
	for _, child := range g.Children {
		switch n := child.(type) {
		case *Condition:
			if underOr && indexable(n, ref) {
				return true
			}
		case *Group:
			if hasIndexableUnderOr(n, underOr, ref) {
				return true
			}
		}
	}
	return false
}

func collectIndexable(g *Group, ref time.Time) []*Condition {
	var out []*Condition
	for _, child := range g.Children {
		switch n := child.(type) {
		case *Condition:
			if indexable(n, ref) {
				out = append(out, n)
			}
		case *Group:
			out = append(out, collectIndexable(n, ref)...)
		}
	}
	return out
}

func allDirectChildren(root *Group, conditions []*Condition) bool {
	direct := make(map[*Condition]struct{}, len(root.Children))
	for _, child := range root.Children {
		if c, ok := child.(*Condition); ok {
			direct[c] = struct{}{}
		}
	}
	for _, c := range conditions {
		if _, ok := direct[c]; !ok {
			return false
		}
	}
	return true
}

// lookup serves an indexable condition from the memo cache or the index.
// It returns nil when the combination cannot be served after all; the
// caller falls back to the full set.
func (o *optimizer) lookup(c *Condition, ref time.Time) PathSet {
	key := fmt.Sprintf("%s:%s:%s", c.Property, c.Operator, firstText(c.Value))
	if set, ok := o.cache.Get(key); ok {
		return set
	}

	var set PathSet
	switch {
	case c.Property == PropStatus && c.Operator == OpIs:
		set = o.index.PathsByStatus(firstText(c.Value))
	case (c.Property == PropDue || c.Property == PropScheduled) && c.Operator == OpIs:
		day, ok := resolveDay(firstText(c.Value), ref)
		if !ok {
			return nil
		}
		set = o.index.PathsByDate(day)
	case c.Property == PropDue && c.Operator == OpBefore:
		set = o.index.OverduePaths()
	default:
		return nil
	}
	if set == nil {
		set = PathSet{}
	}

	o.cache.Set(key, set)
	return set.Clone()
}
