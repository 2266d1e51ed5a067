package otq

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	defaultBatchSize    = 50
	defaultLookupTTL    = 30 * time.Second
	defaultOptionsTTL   = 5 * time.Minute
	defaultOptionsStale = 30 * time.Second
)

// SelectableValues is everything a query-builder UI can offer as filter
// choices.
type SelectableValues struct {
	Statuses   []string
	Priorities []string
	Contexts   []string
	Projects   []string
	Tags       []string
	Folders    []string
	Fields     []FieldDef
}

// Options configures an Engine. The zero value works; empty fields take
// defaults.
type Options struct {
	Statuses   []StatusDef
	Priorities []PriorityDef
	Fields     []FieldDef

	Recurrence Recurrence
	Projects   ProjectResolver

	// CompletedOverdue keeps completed tasks in the overdue bucket. Off by
	// default: a done task with a past due date is not late.
	CompletedOverdue bool

	// BatchSize caps concurrent point lookups during materialization.
	BatchSize int

	LookupTTL         time.Duration // optimizer memo expiry
	OptionsTTL        time.Duration // selectable-values fallback expiry
	OptionsStaleAfter time.Duration // mutation age before options invalidate

	Logger *slog.Logger

	// Clock overrides time for tests.
	Clock func() time.Time
}

// Engine answers "which tasks match this query, in what order, grouped
// how". All operations are synchronous; the only waits are the batched
// point lookups against the index.
type Engine struct {
	index   TaskIndex
	ev      *evaluator
	sorter  *sorter
	grouper *grouper
	opt     *optimizer

	lookups *lookupCache
	options *optionsCache
	fields  *fieldTable

	batchSize int
	logger    *slog.Logger

	unsubscribe []func()
}

// New builds an engine over a task index and subscribes to its mutation
// events for cache invalidation. Close releases the subscriptions.
func New(index TaskIndex, opts Options) *Engine {
	if len(opts.Statuses) == 0 {
		opts.Statuses = DefaultStatuses
	}
	if len(opts.Priorities) == 0 {
		opts.Priorities = DefaultPriorities
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.LookupTTL <= 0 {
		opts.LookupTTL = defaultLookupTTL
	}
	if opts.OptionsTTL <= 0 {
		opts.OptionsTTL = defaultOptionsTTL
	}
	if opts.OptionsStaleAfter <= 0 {
		opts.OptionsStaleAfter = defaultOptionsStale
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fields := newFieldTable(opts.Fields)
	ev := newEvaluator(fields, opts.Statuses, opts.Priorities, opts.Projects)

	e := &Engine{
		index:  index,
		ev:     ev,
		sorter: newSorter(ev, fields, opts.Statuses),
		grouper: &grouper{
			ev:               ev,
			fields:           fields,
			statuses:         opts.Statuses,
			recurrence:       opts.Recurrence,
			completedOverdue: opts.CompletedOverdue,
		},
		lookups:   newLookupCache(opts.LookupTTL, opts.Clock),
		options:   newOptionsCache(opts.OptionsTTL, opts.OptionsStaleAfter, opts.Clock),
		fields:    fields,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
	}
	e.opt = &optimizer{index: index, cache: e.lookups}

	for _, kind := range []EventKind{
		EventRecordAdded, EventRecordUpdated, EventRecordDeleted,
		EventRecordRenamed, EventIndexRebuilt,
	} {
		e.unsubscribe = append(e.unsubscribe, index.Subscribe(kind, e.onEvent))
	}
	return e
}

// Close unsubscribes from the index. The engine must not be used after.
func (e *Engine) Close() {
	for _, fn := range e.unsubscribe {
		fn()
	}
	e.unsubscribe = nil
}

// onEvent clears the optimizer memo on every mutation and runs the
// options cache through its throttled freshness check.
func (e *Engine) onEvent(ev Event) {
	e.lookups.Clear()
	if ev.Kind == EventIndexRebuilt {
		e.options.Invalidate()
		return
	}
	e.options.Mutated()
}

// Evaluate runs the full pipeline: optimizer, batched materialization,
// filter, sort, group. Errors never reach the caller; they are logged and
// an empty grouping is returned, keeping the surface available. A zero ref
// means now.
func (e *Engine) Evaluate(ctx context.Context, q Query, ref time.Time) *Grouping {
	if ref.IsZero() {
		ref = time.Now()
	}
	q = Normalize(q)

	candidates, _ := e.opt.Candidates(q, ref)
	tasks := e.materialize(ctx, candidates)

	matched := tasks[:0]
	for _, task := range tasks {
		ok, err := e.ev.Matches(q.Root, task, ref)
		if err != nil {
			e.logEvaluateError(err)
			return newGrouping()
		}
		if ok {
			matched = append(matched, task)
		}
	}

	sorted := e.sorter.Sort(matched, q.SortKey, q.SortDirection)
	return e.grouper.Group(sorted, q.GroupKey, ref, q.SortKey, q.SortDirection)
}

func (e *Engine) logEvaluateError(err error) {
	switch v := err.(type) {
	case *ValidationError:
		e.logger.Error("query validation failed",
			"node", v.NodeID, "property", string(v.Property), "err", v.Err)
	case *EvaluationError:
		e.logger.Error("query evaluation failed",
			"node", v.NodeID, "property", string(v.Property), "err", v.Err)
	default:
		e.logger.Error("query failed", "err", err)
	}
}

// materialize turns the candidate paths into task snapshots. Lookups run
// in fixed-size batches, each awaited before the next starts, capping peak
// fan-out without holding the caller for the whole set at once. The result
// is this pass's snapshot: concurrent index mutations do not disturb it.
func (e *Engine) materialize(ctx context.Context, candidates PathSet) []*Task {
	paths := make([]Path, 0, len(candidates))
	for p := range candidates {
		paths = append(paths, p)
	}
	// Deterministic lookup order keeps ties in later stages stable.
	slices.Sort(paths)

	tasks := make([]*Task, 0, len(paths))
	for start := 0; start < len(paths); start += e.batchSize {
		end := min(start+e.batchSize, len(paths))
		batch := paths[start:end]

		results := make([]*Task, len(batch))
		var wg sync.WaitGroup
		for i, path := range batch {
			i, path := i, path
			wg.Add(1)
			go func() {
				defer wg.Done()
				task, err := e.index.TaskAt(ctx, path)
				if err != nil {
					e.logger.Warn("task lookup failed", "path", string(path), "err", err)
					return
				}
				results[i] = task
			}()
		}
		wg.Wait()

		for _, task := range results {
			if task != nil {
				tasks = append(tasks, task)
			}
		}
	}
	return tasks
}

// SelectableValues returns the distinct filterable values for UI
// population, served from the options cache.
func (e *Engine) SelectableValues() *SelectableValues {
	if v, ok := e.options.Get(); ok {
		return v
	}
	v := &SelectableValues{
		Statuses:   e.index.AllStatuses(),
		Priorities: e.index.AllPriorities(),
		Contexts:   e.index.AllContexts(),
		Projects:   e.index.AllProjects(),
		Tags:       e.index.AllTags(),
		Folders:    e.index.AllFolders(),
		Fields:     e.fields.all(),
	}
	e.options.Set(v)
	return v
}

// Sweep evicts expired optimizer memo entries. Long-lived callers can run
// it on a ticker; short-lived ones never need to.
func (e *Engine) Sweep() {
	e.lookups.Sweep()
}
