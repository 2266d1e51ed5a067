package otq

import (
	"path/filepath"
	"strings"
	"time"
)

// Path identifies a task record inside the backing index. The engine treats
// it as an opaque key; the vault implementation uses "file.md:line".
type Path string

// Folder returns the directory portion of the path, "/" for the vault root.
func (p Path) Folder() string {
	s := string(p)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	dir := filepath.Dir(s)
	if dir == "." {
		return "/"
	}
	return dir
}

// PathSet is the lookup-set shape exposed by the task index.
type PathSet map[Path]struct{}

// Clone returns an independent copy of the set.
func (s PathSet) Clone() PathSet {
	out := make(PathSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Intersect keeps only paths present in both sets.
func (s PathSet) Intersect(other PathSet) PathSet {
	out := make(PathSet)
	for p := range s {
		if _, ok := other[p]; ok {
			out[p] = struct{}{}
		}
	}
	return out
}

// Task is a read-only snapshot of a task record. The index owns the record
// and hands out copies; the engine never mutates one.
type Task struct {
	Path     Path
	Title    string
	Status   string // status key, resolved against StatusDef
	Priority string // priority key, resolved against PriorityDef

	Due       string // calendar date or date-time string, empty if none
	Scheduled string

	Recurrence        string   // RFC-5545-like rule text, empty if none
	CompleteInstances []string // YYYY-MM-DD days a recurring task was completed on

	Tags     []string
	Contexts []string
	Projects []string

	Archived bool

	// User-defined extension fields, raw values keyed by field id. Typed
	// interpretation goes through the field definition table.
	UserFields map[string]string

	CreatedAt  time.Time
	ModifiedAt time.Time

	Order  *float64 // manual ordering number, nil sorts last
	Points *float64 // story points, nil sorts last
}

// IsRecurring reports whether the task carries a recurrence rule.
func (t *Task) IsRecurring() bool {
	return t.Recurrence != ""
}

// CompletedOn reports whether a recurring task has a completed instance on
// the given UTC calendar day.
func (t *Task) CompletedOn(day time.Time) bool {
	key := day.Format("2006-01-02")
	for _, d := range t.CompleteInstances {
		if d == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the snapshot.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.CompleteInstances = append([]string(nil), t.CompleteInstances...)
	out.Tags = append([]string(nil), t.Tags...)
	out.Contexts = append([]string(nil), t.Contexts...)
	out.Projects = append([]string(nil), t.Projects...)
	if t.UserFields != nil {
		out.UserFields = make(map[string]string, len(t.UserFields))
		for k, v := range t.UserFields {
			out.UserFields[k] = v
		}
	}
	if t.Order != nil {
		v := *t.Order
		out.Order = &v
	}
	if t.Points != nil {
		v := *t.Points
		out.Points = &v
	}
	return &out
}

// StatusDef declares a status key, its display order (slice position) and
// whether it counts as completed.
type StatusDef struct {
	Key   string
	Label string
	Done  bool
}

// PriorityDef declares a priority key and its numeric weight. Higher weight
// means more urgent.
type PriorityDef struct {
	Key    string
	Weight int
}

// DefaultStatuses is the status set used when the caller declares none.
var DefaultStatuses = []StatusDef{
	{Key: "open", Label: "Open"},
	{Key: "in-progress", Label: "In progress"},
	{Key: "done", Label: "Done", Done: true},
	{Key: "cancelled", Label: "Cancelled", Done: true},
}

// DefaultPriorities is the priority scale used when the caller declares none.
var DefaultPriorities = []PriorityDef{
	{Key: "highest", Weight: 5},
	{Key: "high", Weight: 4},
	{Key: "normal", Weight: 3},
	{Key: "low", Weight: 2},
	{Key: "lowest", Weight: 1},
}
