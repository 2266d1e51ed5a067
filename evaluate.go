package otq

import (
	"fmt"
	"strings"
	"time"
)

// ProjectResolver canonicalizes a project reference before comparison, so
// two spellings of the same link (say "[[Website Redesign]]" and
// "projects/website-redesign.md") compare equal when they resolve to the
// same backing record. The engine is not coupled to any link syntax; the
// identity function is the default.
type ProjectResolver interface {
	Resolve(reference string) string
}

type identityResolver struct{}

func (identityResolver) Resolve(reference string) string { return reference }

// evaluator decides whether a task snapshot satisfies a filter node. It is
// built once per engine from the declared statuses, priorities and fields.
type evaluator struct {
	fields     *fieldTable
	statuses   map[string]StatusDef
	priorities map[string]int
	projects   ProjectResolver
}

func newEvaluator(fields *fieldTable, statuses []StatusDef, priorities []PriorityDef, resolver ProjectResolver) *evaluator {
	if resolver == nil {
		resolver = identityResolver{}
	}
	ev := &evaluator{
		fields:     fields,
		statuses:   make(map[string]StatusDef, len(statuses)),
		priorities: make(map[string]int, len(priorities)),
		projects:   resolver,
	}
	for _, s := range statuses {
		ev.statuses[s.Key] = s
	}
	for _, p := range priorities {
		ev.priorities[p.Key] = p.Weight
	}
	return ev
}

// isCompleted is the status-completeness function. A non-recurring task is
// complete when its status key is a done status. A recurring task is asked
// per instance: is the occurrence on the reference day completed.
func (ev *evaluator) isCompleted(task *Task, ref time.Time) bool {
	if task.IsRecurring() {
		return task.CompletedOn(startOfDay(ref))
	}
	return ev.statuses[task.Status].Done
}

// priorityWeight returns the numeric weight of a priority key, 0 for
// unknown keys.
func (ev *evaluator) priorityWeight(key string) int {
	return ev.priorities[key]
}

// Matches reports whether the task satisfies the filter node for the given
// reference date.
func (ev *evaluator) Matches(node Node, task *Task, ref time.Time) (bool, error) {
	switch n := node.(type) {
	case *Condition:
		return ev.matchCondition(n, task, ref)
	case *Group:
		return ev.matchGroup(n, task, ref)
	}
	return false, &ValidationError{NodeID: node.NodeID(), Err: fmt.Errorf("unhandled node type %T", node)}
}

func (ev *evaluator) matchGroup(g *Group, task *Task, ref time.Time) (bool, error) {
	// Incomplete condition children are inert; groups always participate.
	var active []Node
	for _, child := range g.Children {
		if c, ok := child.(*Condition); ok && !c.Complete() {
			continue
		}
		active = append(active, child)
	}
	// A group with nothing left to say matches unconditionally.
	if len(active) == 0 {
		return true, nil
	}

	for _, child := range active {
		ok, err := ev.Matches(child, task, ref)
		if err != nil {
			return false, err
		}
		if g.Conjunction == ConjOr {
			if ok {
				return true, nil
			}
		} else if !ok {
			return false, nil
		}
	}
	return g.Conjunction != ConjOr, nil
}

func (ev *evaluator) matchCondition(c *Condition, task *Task, ref time.Time) (bool, error) {
	if !c.Complete() {
		return true, nil
	}
	if _, ok := knownOperators[c.Operator]; !ok {
		return false, &ValidationError{NodeID: c.ID, Property: c.Property, Err: ErrUnknownOperator}
	}

	val, present, err := ev.resolve(c, task, ref)
	if err != nil {
		return false, err
	}

	switch c.Operator {
	case OpEmpty:
		return !present || valueEmpty(val), nil
	case OpNotEmpty:
		return present && !valueEmpty(val), nil
	case OpChecked, OpNotChecked:
		if val.Kind != ValueBool {
			return false, &ValidationError{NodeID: c.ID, Property: c.Property, Err: fmt.Errorf("%w: %s on non-boolean property", ErrUnknownOperator, c.Operator)}
		}
		if c.Operator == OpChecked {
			return present && val.Bool, nil
		}
		return !present || !val.Bool, nil
	case OpIs, OpIsNot:
		eq := ev.valuesEqual(c.Property, val, present, c.Value, ref)
		if c.Operator == OpIsNot {
			return !eq, nil
		}
		return eq, nil
	case OpContains, OpNotContains:
		has := ev.valueContains(c.Property, val, present, c.Value)
		if c.Operator == OpNotContains {
			return !has, nil
		}
		return has, nil
	case OpBefore, OpAfter, OpOnOrBefore, OpOnOrAfter:
		return ev.compareDates(c, val, present, ref)
	case OpGreaterThan, OpLessThan, OpGreaterOrEq, OpLessOrEq:
		return ev.compareOrdered(c, task, val, present)
	}
	return false, &ValidationError{NodeID: c.ID, Property: c.Property, Err: ErrUnknownOperator}
}

// resolve looks up the task value a condition inspects. The second return
// is false when the task has no value for the property.
func (ev *evaluator) resolve(c *Condition, task *Task, ref time.Time) (Value, bool, error) {
	p := c.Property
	if p.IsUser() {
		return ev.resolveUser(c, task)
	}

	switch p {
	case PropTitle:
		return TextValue(task.Title), task.Title != "", nil
	case PropStatus:
		return TextValue(task.Status), task.Status != "", nil
	case PropCompleted:
		return BoolValue(ev.isCompleted(task, ref)), true, nil
	case PropPriority:
		return TextValue(task.Priority), task.Priority != "", nil
	case PropDue:
		return DateValue(task.Due), task.Due != "", nil
	case PropScheduled:
		return DateValue(task.Scheduled), task.Scheduled != "", nil
	case PropRecurrence:
		return TextValue(task.Recurrence), task.Recurrence != "", nil
	case PropTags:
		return ListValue(task.Tags...), len(task.Tags) > 0, nil
	case PropContexts:
		return ListValue(task.Contexts...), len(task.Contexts) > 0, nil
	case PropProjects:
		return ListValue(task.Projects...), len(task.Projects) > 0, nil
	case PropArchived:
		return BoolValue(task.Archived), true, nil
	case PropCreated:
		if task.CreatedAt.IsZero() {
			return Value{}, false, nil
		}
		return DateValue(task.CreatedAt.UTC().Format(time.RFC3339)), true, nil
	case PropModified:
		if task.ModifiedAt.IsZero() {
			return Value{}, false, nil
		}
		return DateValue(task.ModifiedAt.UTC().Format(time.RFC3339)), true, nil
	case PropPoints:
		if task.Points == nil {
			return Value{}, false, nil
		}
		return NumberValue(*task.Points), true, nil
	case PropOrderNumber:
		if task.Order == nil {
			return Value{}, false, nil
		}
		return NumberValue(*task.Order), true, nil
	}
	return Value{}, false, &ValidationError{NodeID: c.ID, Property: p, Err: ErrUnknownProperty}
}

func (ev *evaluator) resolveUser(c *Condition, task *Task) (Value, bool, error) {
	def, ok := ev.fields.lookup(c.Property.FieldID())
	if !ok {
		return Value{}, false, &ValidationError{NodeID: c.ID, Property: c.Property, Err: ErrUnknownField}
	}
	raw, has := ev.fields.raw(task, def.ID)
	if !has || strings.TrimSpace(raw) == "" {
		return Value{}, false, nil
	}
	switch def.Kind {
	case FieldNumber:
		n, ok := parseNumber(raw)
		if !ok {
			return Value{}, false, &EvaluationError{NodeID: c.ID, Property: c.Property, Err: fmt.Errorf("unparsable number %q", raw)}
		}
		return NumberValue(n), true, nil
	case FieldBoolean:
		b, ok := parseBool(raw)
		if !ok {
			return Value{}, false, &EvaluationError{NodeID: c.ID, Property: c.Property, Err: fmt.Errorf("unparsable boolean %q", raw)}
		}
		return BoolValue(b), true, nil
	case FieldDate:
		return DateValue(raw), true, nil
	case FieldList:
		return ListValue(listValues(raw)...), true, nil
	default:
		return TextValue(raw), true, nil
	}
}

// valuesEqual implements "is" with list values on either side: a match is
// any task value equaling any condition value.
func (ev *evaluator) valuesEqual(p Property, taskVal Value, present bool, condVal Value, ref time.Time) bool {
	if !present {
		return false
	}
	switch taskVal.Kind {
	case ValueBool:
		if condVal.Kind == ValueBool {
			return taskVal.Bool == condVal.Bool
		}
		b, ok := parseBool(firstText(condVal))
		return ok && taskVal.Bool == b
	case ValueNumber:
		if condVal.Kind == ValueNumber {
			return taskVal.Number == condVal.Number
		}
		n, ok := parseNumber(firstText(condVal))
		return ok && taskVal.Number == n
	case ValueDate:
		// The condition side may be a relative keyword ("today"), so it
		// resolves against the reference date like range comparisons do.
		taskDay, tok := anchorDay(taskVal.Text)
		condDay, cok := resolveDay(firstText(condVal), ref)
		return tok && cok && taskDay.Equal(condDay)
	}

	for _, tv := range ev.canonical(p, taskVal.texts()) {
		for _, cv := range ev.canonical(p, condVal.texts()) {
			if strings.EqualFold(tv, cv) {
				return true
			}
		}
	}
	return false
}

// valueContains implements "contains": any condition value appearing as a
// case-insensitive substring (or list member) of any task value.
func (ev *evaluator) valueContains(p Property, taskVal Value, present bool, condVal Value) bool {
	if !present {
		return false
	}
	taskTexts := ev.canonical(p, taskVal.texts())
	condTexts := ev.canonical(p, condVal.texts())
	for _, tv := range taskTexts {
		for _, cv := range condTexts {
			if cv == "" {
				continue
			}
			if taskVal.Kind == ValueList {
				// Membership for list-typed properties.
				if strings.EqualFold(tv, cv) {
					return true
				}
				continue
			}
			if strings.Contains(strings.ToLower(tv), strings.ToLower(cv)) {
				return true
			}
		}
	}
	return false
}

// canonical routes project references through the resolver so differently
// spelled links to the same record compare equal.
func (ev *evaluator) canonical(p Property, texts []string) []string {
	if p != PropProjects {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = ev.projects.Resolve(t)
	}
	return out
}

func (ev *evaluator) compareDates(c *Condition, taskVal Value, present bool, ref time.Time) (bool, error) {
	if !present {
		return false, nil
	}
	taskDay, ok := anchorDay(taskVal.Text)
	if !ok {
		return false, &EvaluationError{NodeID: c.ID, Property: c.Property, Err: fmt.Errorf("unparsable date %q", taskVal.Text)}
	}
	condDay, ok := resolveDay(firstText(c.Value), ref)
	if !ok {
		return false, &EvaluationError{NodeID: c.ID, Property: c.Property, Err: fmt.Errorf("unparsable date %q", firstText(c.Value))}
	}
	switch c.Operator {
	case OpBefore:
		return taskDay.Before(condDay), nil
	case OpAfter:
		return taskDay.After(condDay), nil
	case OpOnOrBefore:
		return !taskDay.After(condDay), nil
	case OpOnOrAfter:
		return !taskDay.Before(condDay), nil
	}
	return false, &ValidationError{NodeID: c.ID, Property: c.Property, Err: ErrUnknownOperator}
}

func (ev *evaluator) compareOrdered(c *Condition, task *Task, taskVal Value, present bool) (bool, error) {
	if !present {
		return false, nil
	}

	var lhs, rhs float64
	switch {
	case c.Property == PropPriority:
		// Priority ordering compares weights, not key text.
		lhs = float64(ev.priorityWeight(task.Priority))
		w, ok := ev.condWeight(c.Value)
		if !ok {
			return false, &EvaluationError{NodeID: c.ID, Property: c.Property, Err: fmt.Errorf("unknown priority %q", firstText(c.Value))}
		}
		rhs = w
	case taskVal.Kind == ValueNumber:
		lhs = taskVal.Number
		n, ok := condNumber(c.Value)
		if !ok {
			return false, &EvaluationError{NodeID: c.ID, Property: c.Property, Err: fmt.Errorf("non-numeric value %q", firstText(c.Value))}
		}
		rhs = n
	default:
		return false, &ValidationError{NodeID: c.ID, Property: c.Property, Err: fmt.Errorf("%w: %s on %s", ErrUnknownOperator, c.Operator, c.Property)}
	}

	switch c.Operator {
	case OpGreaterThan:
		return lhs > rhs, nil
	case OpLessThan:
		return lhs < rhs, nil
	case OpGreaterOrEq:
		return lhs >= rhs, nil
	case OpLessOrEq:
		return lhs <= rhs, nil
	}
	return false, &ValidationError{NodeID: c.ID, Property: c.Property, Err: ErrUnknownOperator}
}

func (ev *evaluator) condWeight(v Value) (float64, bool) {
	if v.Kind == ValueNumber {
		return v.Number, true
	}
	if w, ok := ev.priorities[firstText(v)]; ok {
		return float64(w), true
	}
	return 0, false
}

func condNumber(v Value) (float64, bool) {
	if v.Kind == ValueNumber {
		return v.Number, true
	}
	return parseNumber(firstText(v))
}

func firstText(v Value) string {
	switch v.Kind {
	case ValueText, ValueDate:
		return v.Text
	case ValueList:
		if len(v.List) > 0 {
			return v.List[0]
		}
	case ValueNumber:
		return ""
	case ValueBool:
		if v.Bool {
			return "true"
		}
		return "false"
	}
	return ""
}

// valueEmpty treats empty string, empty list and absent values identically.
func valueEmpty(v Value) bool {
	switch v.Kind {
	case ValueAbsent:
		return true
	case ValueText, ValueDate:
		return strings.TrimSpace(v.Text) == ""
	case ValueList:
		for _, item := range v.List {
			if strings.TrimSpace(item) != "" {
				return false
			}
		}
		return true
	}
	return false
}

// Validate checks a filter tree strictly: every condition must name a known
// property, a known operator, and carry a value when the operator needs
// one. Interactive construction should not call this; it is the commit-time
// check.
func Validate(node Node, fields []FieldDef) error {
	table := newFieldTable(fields)
	return validateNode(node, table)
}

func validateNode(node Node, table *fieldTable) error {
	switch n := node.(type) {
	case *Condition:
		if n.Property.IsUser() {
			if _, ok := table.lookup(n.Property.FieldID()); !ok {
				return &ValidationError{NodeID: n.ID, Property: n.Property, Err: ErrUnknownField}
			}
		} else if _, ok := builtinProperties[n.Property]; !ok {
			return &ValidationError{NodeID: n.ID, Property: n.Property, Err: ErrUnknownProperty}
		}
		if _, ok := knownOperators[n.Operator]; !ok {
			return &ValidationError{NodeID: n.ID, Property: n.Property, Err: ErrUnknownOperator}
		}
		if n.Operator.NeedsValue() && n.Value.IsAbsent() {
			return &ValidationError{NodeID: n.ID, Property: n.Property, Err: ErrMissingValue}
		}
		return nil
	case *Group:
		for _, child := range n.Children {
			if err := validateNode(child, table); err != nil {
				return err
			}
		}
		return nil
	}
	return &ValidationError{NodeID: node.NodeID(), Err: fmt.Errorf("unhandled node type %T", node)}
}
