package otq

import (
	"strings"

	"github.com/google/uuid"
)

// Property selects which task value a condition inspects. Built-in
// properties are a fixed enumeration; "user:<field-id>" selects a
// user-defined extension field.
type Property string

const (
	PropTitle       Property = "title"
	PropStatus      Property = "status"
	PropCompleted   Property = "status.isCompleted"
	PropPriority    Property = "priority"
	PropDue         Property = "due"
	PropScheduled   Property = "scheduled"
	PropRecurrence  Property = "recurrence"
	PropTags        Property = "tags"
	PropContexts    Property = "contexts"
	PropProjects    Property = "projects"
	PropArchived    Property = "archived"
	PropCreated     Property = "created"
	PropModified    Property = "modified"
	PropPoints      Property = "points"
	PropOrderNumber Property = "order"
)

const userPrefix = "user:"

// IsUser reports whether the property is a dynamic user-field selector.
func (p Property) IsUser() bool {
	return strings.HasPrefix(string(p), userPrefix)
}

// FieldID returns the field id of a user-field selector, or "".
func (p Property) FieldID() string {
	if !p.IsUser() {
		return ""
	}
	return strings.TrimPrefix(string(p), userPrefix)
}

// UserProperty builds the selector for a user-defined field id.
func UserProperty(fieldID string) Property {
	return Property(userPrefix + fieldID)
}

var builtinProperties = map[Property]struct{}{
	PropTitle: {}, PropStatus: {}, PropCompleted: {}, PropPriority: {},
	PropDue: {}, PropScheduled: {}, PropRecurrence: {}, PropTags: {},
	PropContexts: {}, PropProjects: {}, PropArchived: {}, PropCreated: {},
	PropModified: {}, PropPoints: {}, PropOrderNumber: {},
}

// Operator is the comparison a condition applies.
type Operator string

const (
	OpIs          Operator = "is"
	OpIsNot       Operator = "is-not"
	OpContains    Operator = "contains"
	OpNotContains Operator = "does-not-contain"
	OpBefore      Operator = "before"
	OpAfter       Operator = "after"
	OpOnOrBefore  Operator = "on-or-before"
	OpOnOrAfter   Operator = "on-or-after"
	OpEmpty       Operator = "empty"
	OpNotEmpty    Operator = "not-empty"
	OpChecked     Operator = "checked"
	OpNotChecked  Operator = "not-checked"
	OpGreaterThan Operator = "greater-than"
	OpLessThan    Operator = "less-than"
	OpGreaterOrEq Operator = "greater-than-or-equal"
	OpLessOrEq    Operator = "less-than-or-equal"
)

// NeedsValue reports whether the operator requires a comparison value.
func (o Operator) NeedsValue() bool {
	switch o {
	case OpEmpty, OpNotEmpty, OpChecked, OpNotChecked:
		return false
	}
	return true
}

var knownOperators = map[Operator]struct{}{
	OpIs: {}, OpIsNot: {}, OpContains: {}, OpNotContains: {},
	OpBefore: {}, OpAfter: {}, OpOnOrBefore: {}, OpOnOrAfter: {},
	OpEmpty: {}, OpNotEmpty: {}, OpChecked: {}, OpNotChecked: {},
	OpGreaterThan: {}, OpLessThan: {}, OpGreaterOrEq: {}, OpLessOrEq: {},
}

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueAbsent ValueKind = iota
	ValueText
	ValueNumber
	ValueBool
	ValueDate
	ValueList
)

// Value is the closed comparison-value variant of a condition. The zero
// Value is absent.
type Value struct {
	Kind   ValueKind
	Text   string // ValueText and ValueDate
	Number float64
	Bool   bool
	List   []string
}

func TextValue(s string) Value    { return Value{Kind: ValueText, Text: s} }
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Number: n} }
func BoolValue(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }
func DateValue(s string) Value    { return Value{Kind: ValueDate, Text: s} }
func ListValue(s ...string) Value { return Value{Kind: ValueList, List: s} }

// IsAbsent reports whether the value is missing.
func (v Value) IsAbsent() bool { return v.Kind == ValueAbsent }

func (v Value) clone() Value {
	out := v
	out.List = append([]string(nil), v.List...)
	return out
}

// texts flattens the value to its textual members: the single text for
// scalar kinds, every element for lists.
func (v Value) texts() []string {
	switch v.Kind {
	case ValueText, ValueDate:
		return []string{v.Text}
	case ValueList:
		return v.List
	}
	return nil
}

// Conjunction combines a group's children.
type Conjunction string

const (
	ConjAnd Conjunction = "and"
	ConjOr  Conjunction = "or"
)

// Node is a member of the recursive filter tree: either *Condition or
// *Group, nothing else. The marker method keeps the sum closed so the
// evaluator and optimizer can switch exhaustively.
type Node interface {
	NodeID() string
	CloneNode() Node
	filterNode()
}

// Condition is a leaf of the filter tree.
type Condition struct {
	ID       string
	Property Property
	Operator Operator
	Value    Value
}

func (c *Condition) filterNode()    {}
func (c *Condition) NodeID() string { return c.ID }

// Complete reports whether the condition carries everything its operator
// needs. Incomplete conditions are inert during evaluation, never an error,
// so a query can be edited incrementally without producing wrong results.
func (c *Condition) Complete() bool {
	if c.Property == "" || c.Operator == "" {
		return false
	}
	if c.Operator.NeedsValue() && c.Value.IsAbsent() {
		return false
	}
	return true
}

// CloneNode returns a deep copy of the condition.
func (c *Condition) CloneNode() Node {
	out := *c
	out.Value = c.Value.clone()
	return &out
}

// Group is a branch of the filter tree: an ordered list of conditions and
// nested groups joined by a conjunction. An empty group matches every task.
type Group struct {
	ID          string
	Conjunction Conjunction
	Children    []Node
}

func (g *Group) filterNode()    {}
func (g *Group) NodeID() string { return g.ID }

// CloneNode returns a deep copy of the group and its subtree.
func (g *Group) CloneNode() Node { return g.Clone() }

// Clone returns a deep copy of the group and its subtree.
func (g *Group) Clone() *Group {
	out := &Group{ID: g.ID, Conjunction: g.Conjunction}
	for _, child := range g.Children {
		out.Children = append(out.Children, child.CloneNode())
	}
	return out
}

// SortDirection orders sort output.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortKey is the primary sort key: a fixed enumeration or "user:<field-id>".
type SortKey string

const (
	SortByOrder     SortKey = "order"
	SortByDue       SortKey = "due"
	SortByScheduled SortKey = "scheduled"
	SortByPriority  SortKey = "priority"
	SortByTitle     SortKey = "title"
	SortByStatus    SortKey = "status"
	SortByCreated   SortKey = "created"
	SortByModified  SortKey = "modified"
	SortByPoints    SortKey = "points"
)

// GroupKey selects the bucketing rule: a fixed enumeration,
// "user:<field-id>", or "none".
type GroupKey string

const (
	GroupByNone      GroupKey = "none"
	GroupByStatus    GroupKey = "status"
	GroupByPriority  GroupKey = "priority"
	GroupByContext   GroupKey = "context"
	GroupByProject   GroupKey = "project"
	GroupByDue       GroupKey = "due"
	GroupByScheduled GroupKey = "scheduled"
	GroupByFolder    GroupKey = "folder"
)

// Query is a complete filter/sort/group request.
type Query struct {
	Root          *Group
	SortKey       SortKey
	SortDirection SortDirection
	GroupKey      GroupKey
}

// Clone returns a deep copy sharing no mutable state with the original.
func (q Query) Clone() Query {
	out := q
	if q.Root != nil {
		out.Root = q.Root.Clone()
	}
	return out
}

// NewCondition builds a condition with a fresh identity.
func NewCondition(p Property, op Operator, v Value) *Condition {
	return &Condition{ID: uuid.NewString(), Property: p, Operator: op, Value: v}
}

// NewGroup builds a group with a fresh identity.
func NewGroup(conj Conjunction, children ...Node) *Group {
	return &Group{ID: uuid.NewString(), Conjunction: conj, Children: children}
}

// DefaultQuery is the query callers start from: match everything, due-date
// ascending, ungrouped.
func DefaultQuery() Query {
	return Query{
		Root:          NewGroup(ConjAnd),
		SortKey:       SortByDue,
		SortDirection: SortAsc,
		GroupKey:      GroupByNone,
	}
}

// Normalize fills every omitted field of a partial query with its default.
// It never fails and is idempotent.
func Normalize(q Query) Query {
	out := q.Clone()
	if out.Root == nil {
		out.Root = NewGroup(ConjAnd)
	}
	if out.Root.ID == "" {
		out.Root.ID = uuid.NewString()
	}
	if out.Root.Conjunction == "" {
		out.Root.Conjunction = ConjAnd
	}
	if out.SortKey == "" {
		out.SortKey = SortByDue
	}
	if out.SortDirection == "" {
		out.SortDirection = SortAsc
	}
	if out.GroupKey == "" {
		out.GroupKey = GroupByNone
	}
	return out
}

// QuickFilter names a well-known root-level condition the caller can toggle
// without doing tree surgery.
type QuickFilter string

const (
	QuickHideCompleted QuickFilter = "hide-completed"
	QuickHideArchived  QuickFilter = "hide-archived"
	QuickHideRecurring QuickFilter = "hide-recurring"
)

// Injected quick-filter conditions carry fixed ids so a later toggle can
// find and remove exactly the condition it added.
func quickFilterID(kind QuickFilter) string { return "quick:" + string(kind) }

func quickFilterCondition(kind QuickFilter) *Condition {
	c := &Condition{ID: quickFilterID(kind)}
	switch kind {
	case QuickHideCompleted:
		c.Property = PropCompleted
		c.Operator = OpNotChecked
	case QuickHideArchived:
		c.Property = PropArchived
		c.Operator = OpNotChecked
	case QuickHideRecurring:
		c.Property = PropRecurrence
		c.Operator = OpEmpty
	default:
		return nil
	}
	return c
}

// ToggleQuickFilter returns a copy of the query with the named shortcut
// condition added to or removed from the root group. Toggling an unknown
// kind or re-enabling an active one is a no-op beyond the clone.
func ToggleQuickFilter(q Query, kind QuickFilter, enabled bool) Query {
	out := Normalize(q)
	id := quickFilterID(kind)

	kept := out.Root.Children[:0]
	for _, child := range out.Root.Children {
		if child.NodeID() != id {
			kept = append(kept, child)
		}
	}
	out.Root.Children = kept

	if enabled {
		if c := quickFilterCondition(kind); c != nil {
			out.Root.Children = append(out.Root.Children, c)
		}
	}
	return out
}
