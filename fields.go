package otq

import (
	"strconv"
	"strings"
)

// FieldKind is the closed set of user-field types.
type FieldKind string

const (
	FieldText    FieldKind = "text"
	FieldNumber  FieldKind = "number"
	FieldBoolean FieldKind = "boolean"
	FieldDate    FieldKind = "date"
	FieldList    FieldKind = "list"
)

// FieldDef declares a user-defined extension field.
type FieldDef struct {
	ID   string
	Name string
	Kind FieldKind
}

// fieldTable resolves user-field selectors once and caches the typed
// behavior per field id. Lookups after construction are read-only.
type fieldTable struct {
	defs map[string]FieldDef
}

func newFieldTable(defs []FieldDef) *fieldTable {
	t := &fieldTable{defs: make(map[string]FieldDef, len(defs))}
	for _, d := range defs {
		if d.Kind == "" {
			d.Kind = FieldText
		}
		t.defs[d.ID] = d
	}
	return t
}

func (t *fieldTable) lookup(id string) (FieldDef, bool) {
	d, ok := t.defs[id]
	return d, ok
}

func (t *fieldTable) all() []FieldDef {
	out := make([]FieldDef, 0, len(t.defs))
	for _, d := range t.defs {
		out = append(out, d)
	}
	return out
}

// raw returns the stored raw value for a field on a task and whether the
// task carries one.
func (t *fieldTable) raw(task *Task, id string) (string, bool) {
	if task.UserFields == nil {
		return "", false
	}
	v, ok := task.UserFields[id]
	return v, ok
}

// compareField orders two tasks by a user field per its declared kind.
// Type-mismatched or unparsable values sort after valid ones; two invalid
// values tie. Boolean order is true, false, unset.
func (t *fieldTable) compareField(def FieldDef, a, b *Task) int {
	ra, okA := t.raw(a, def.ID)
	rb, okB := t.raw(b, def.ID)

	switch def.Kind {
	case FieldNumber:
		return compareParsed(ra, okA, rb, okB, parseNumber, func(x, y float64) int {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		})
	case FieldBoolean:
		return compareParsed(ra, okA, rb, okB, parseBool, func(x, y bool) int {
			switch {
			case x == y:
				return 0
			case x: // true before false
				return -1
			}
			return 1
		})
	case FieldDate:
		return compareParsed(ra, okA, rb, okB, parseDay, func(x, y int64) int {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		})
	case FieldList:
		// Lists order by their first token.
		return compareParsed(ra, okA, rb, okB, firstToken, compareText)
	default:
		return compareParsed(ra, okA, rb, okB, nonEmpty, compareText)
	}
}

// compareParsed applies parse to both raw values and orders valid results
// with cmp, pushing missing or unparsable values last.
func compareParsed[T any](ra string, okA bool, rb string, okB bool, parse func(string) (T, bool), cmp func(T, T) int) int {
	var va, vb T
	if okA {
		va, okA = parse(ra)
	}
	if okB {
		vb, okB = parse(rb)
	}
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	return cmp(va, vb)
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return n, err == nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}
	return false, false
}

func parseDay(s string) (int64, bool) {
	d, ok := anchorDay(s)
	if !ok {
		return 0, false
	}
	return d.Unix(), true
}

func firstToken(s string) (string, bool) {
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part != "" {
			return part, true
		}
	}
	return "", false
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// listValues splits a list-kind raw value into its elements.
func listValues(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// bucketValue derives the group-bucket name for a user field, mirroring the
// sort rules: numbers and dates normalize their text form, booleans render
// true/false, lists bucket by first token.
func (t *fieldTable) bucketValue(def FieldDef, task *Task) string {
	raw, ok := t.raw(task, def.ID)
	if !ok || strings.TrimSpace(raw) == "" {
		return noValueBucket
	}
	switch def.Kind {
	case FieldNumber:
		n, ok := parseNumber(raw)
		if !ok {
			return unknownBucket
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case FieldBoolean:
		b, ok := parseBool(raw)
		if !ok {
			return unknownBucket
		}
		return strconv.FormatBool(b)
	case FieldDate:
		d, ok := anchorDay(raw)
		if !ok {
			return unknownBucket
		}
		return d.Format("2006-01-02")
	case FieldList:
		tok, ok := firstToken(raw)
		if !ok {
			return noValueBucket
		}
		return tok
	default:
		return strings.TrimSpace(raw)
	}
}
