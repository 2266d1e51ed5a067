package otq

import (
	"context"
	"time"
)

// EventKind enumerates index mutation events.
type EventKind int

const (
	EventRecordAdded EventKind = iota
	EventRecordUpdated
	EventRecordDeleted
	EventRecordRenamed
	EventIndexRebuilt
)

func (k EventKind) String() string {
	switch k {
	case EventRecordAdded:
		return "record-added"
	case EventRecordUpdated:
		return "record-updated"
	case EventRecordDeleted:
		return "record-deleted"
	case EventRecordRenamed:
		return "record-renamed"
	case EventIndexRebuilt:
		return "index-rebuilt"
	}
	return "unknown"
}

// Event describes a single index mutation.
type Event struct {
	Kind    EventKind
	Path    Path
	OldPath Path // renames only
}

// TaskIndex is the storage collaborator the engine queries. The engine
// assumes nothing beyond this contract; it never mutates the index and
// always works on the snapshots TaskAt returns.
type TaskIndex interface {
	AllPaths() PathSet
	PathsByStatus(status string) PathSet
	PathsByDate(day time.Time) PathSet
	OverduePaths() PathSet

	// TaskAt materializes a snapshot for a path, nil if the record vanished.
	TaskAt(ctx context.Context, path Path) (*Task, error)

	AllStatuses() []string
	AllPriorities() []string
	AllContexts() []string
	AllProjects() []string
	AllTags() []string
	AllFolders() []string

	// Subscribe registers a callback for one event kind and returns an
	// unsubscribe function.
	Subscribe(kind EventKind, fn func(Event)) func()
}

// Recurrence is the recurrence-rule collaborator: a pure predicate asking
// whether an instance of a recurring task falls due on the given UTC
// calendar day. Same input must yield the same answer regardless of the
// host clock or timezone.
type Recurrence interface {
	IsDueOn(task *Task, day time.Time) bool
}

// RecurrenceFunc adapts a function to the Recurrence interface.
type RecurrenceFunc func(task *Task, day time.Time) bool

func (f RecurrenceFunc) IsDueOn(task *Task, day time.Time) bool { return f(task, day) }
