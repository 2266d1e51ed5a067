package otq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var engineRef = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeIndex is an in-memory TaskIndex for engine and optimizer tests. Lookup
// sets are derived from the task snapshots; the overdue set is anchored to
// the wall clock like the real index.
type fakeIndex struct {
	mu    sync.Mutex
	tasks map[Path]*Task
	subs  map[EventKind]map[int]func(Event)
	next  int

	errPaths map[Path]error

	statusLookups  int
	allStatusCalls int

	inFlight int
	peak     int
}

func newFakeIndex(tasks ...*Task) *fakeIndex {
	idx := &fakeIndex{
		tasks:    make(map[Path]*Task),
		subs:     make(map[EventKind]map[int]func(Event)),
		errPaths: make(map[Path]error),
	}
	for _, t := range tasks {
		idx.tasks[t.Path] = t
	}
	return idx
}

func (f *fakeIndex) emit(ev Event) {
	f.mu.Lock()
	var fns []func(Event)
	for _, fn := range f.subs[ev.Kind] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeIndex) AllPaths() PathSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(PathSet, len(f.tasks))
	for p := range f.tasks {
		out[p] = struct{}{}
	}
	return out
}

func (f *fakeIndex) PathsByStatus(status string) PathSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusLookups++
	out := make(PathSet)
	for p, t := range f.tasks {
		if t.Status == status {
			out[p] = struct{}{}
		}
	}
	return out
}

func (f *fakeIndex) PathsByDate(day time.Time) PathSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(PathSet)
	for p, t := range f.tasks {
		for _, value := range []string{t.Due, t.Scheduled} {
			if d, ok := anchorDay(value); ok && d.Equal(day) {
				out[p] = struct{}{}
			}
		}
	}
	return out
}

func (f *fakeIndex) OverduePaths() PathSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(PathSet)
	for p, t := range f.tasks {
		if IsOverdue(t.Due, time.Now()) {
			out[p] = struct{}{}
		}
	}
	return out
}

func (f *fakeIndex) TaskAt(ctx context.Context, path Path) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	err := f.errPaths[path]
	task := f.tasks[path]
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

func (f *fakeIndex) distinctValues(values func(*Task) []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, t := range f.tasks {
		for _, v := range values(t) {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}

func (f *fakeIndex) AllStatuses() []string {
	f.mu.Lock()
	f.allStatusCalls++
	f.mu.Unlock()
	return f.distinctValues(func(t *Task) []string { return []string{t.Status} })
}

func (f *fakeIndex) AllPriorities() []string {
	return f.distinctValues(func(t *Task) []string { return []string{t.Priority} })
}

func (f *fakeIndex) AllContexts() []string {
	return f.distinctValues(func(t *Task) []string { return t.Contexts })
}

func (f *fakeIndex) AllProjects() []string {
	return f.distinctValues(func(t *Task) []string { return t.Projects })
}

func (f *fakeIndex) AllTags() []string {
	return f.distinctValues(func(t *Task) []string { return t.Tags })
}

func (f *fakeIndex) AllFolders() []string {
	return f.distinctValues(func(t *Task) []string { return []string{t.Path.Folder()} })
}

func (f *fakeIndex) Subscribe(kind EventKind, fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[kind] == nil {
		f.subs[kind] = make(map[int]func(Event))
	}
	id := f.next
	f.next++
	f.subs[kind][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[kind], id)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func engineTasks() []*Task {
	return []*Task{
		{Path: "inbox.md:1", Title: "pay rent", Status: "open", Due: "2025-03-01"},
		{Path: "inbox.md:2", Title: "call plumber", Status: "open", Due: "2025-03-10"},
		{Path: "inbox.md:3", Title: "old report", Status: "done", Due: "2025-03-05"},
		{Path: "work/plan.md:4", Title: "write roadmap", Status: "in-progress"},
	}
}

func newTestEngine(t *testing.T, idx *fakeIndex, opts Options) *Engine {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	e := New(idx, opts)
	t.Cleanup(e.Close)
	return e
}

func TestEvaluateDefaultQuery(t *testing.T) {
	idx := newFakeIndex(engineTasks()...)
	e := newTestEngine(t, idx, Options{})

	g := e.Evaluate(context.Background(), DefaultQuery(), engineRef)
	assertNames(t, g, "all")
	if g.Total() != 4 {
		t.Errorf("Total = %d, want 4", g.Total())
	}

	// Due ascending with no-due last.
	got := titles(g.Tasks("all"))
	want := []string{"pay rent", "old report", "call plumber", "write roadmap"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestEvaluateFilterSortGroup(t *testing.T) {
	idx := newFakeIndex(engineTasks()...)
	e := newTestEngine(t, idx, Options{})

	q := Query{
		Root:     NewGroup(ConjAnd, NewCondition(PropStatus, OpIsNot, TextValue("done"))),
		SortKey:  SortByDue,
		GroupKey: GroupByStatus,
	}

	g := e.Evaluate(context.Background(), q, engineRef)
	assertNames(t, g, "Open", "In progress")
	if got := titles(g.Tasks("Open")); got[0] != "pay rent" || got[1] != "call plumber" {
		t.Errorf("Open bucket order = %v", got)
	}
}

func TestEvaluateBatchesPointLookups(t *testing.T) {
	var tasks []*Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, &Task{Path: Path(fmt.Sprintf("t.md:%d", i)), Title: fmt.Sprintf("task %d", i), Status: "open"})
	}
	idx := newFakeIndex(tasks...)
	e := newTestEngine(t, idx, Options{BatchSize: 2})

	g := e.Evaluate(context.Background(), DefaultQuery(), engineRef)
	if g.Total() != 6 {
		t.Fatalf("Total = %d, want 6", g.Total())
	}
	if idx.peak > 2 {
		t.Errorf("peak concurrent lookups = %d, want at most 2", idx.peak)
	}
}

func TestEvaluateSkipsFailedLookups(t *testing.T) {
	idx := newFakeIndex(engineTasks()...)
	idx.errPaths["inbox.md:2"] = fmt.Errorf("record vanished")
	e := newTestEngine(t, idx, Options{})

	g := e.Evaluate(context.Background(), DefaultQuery(), engineRef)
	if g.Total() != 3 {
		t.Errorf("Total = %d, want 3 after one failed lookup", g.Total())
	}
	for _, task := range g.Tasks("all") {
		if task.Title == "call plumber" {
			t.Error("failed lookup still produced a task")
		}
	}
}

func TestEvaluateOverdueAgainstShiftedReference(t *testing.T) {
	now := time.Now().UTC()
	idx := newFakeIndex(&Task{
		Path:   "trip.md:1",
		Title:  "book flights",
		Status: "open",
		Due:    now.AddDate(0, 0, 7).Format("2006-01-02"),
	})
	e := newTestEngine(t, idx, Options{})

	// Due a week out, evaluated against a reference day a month out: the
	// task is overdue from that vantage even though the index's wall-clock
	// overdue set does not contain it.
	q := Query{Root: NewGroup(ConjAnd,
		NewCondition(PropDue, OpBefore, DateValue("today")))}

	g := e.Evaluate(context.Background(), q, now.AddDate(0, 1, 0))
	if g.Total() != 1 {
		t.Errorf("Total = %d, want 1", g.Total())
	}
}

func TestEvaluateErrorYieldsEmptyGrouping(t *testing.T) {
	idx := newFakeIndex(engineTasks()...)
	e := newTestEngine(t, idx, Options{})

	q := Query{Root: NewGroup(ConjAnd,
		NewCondition(UserProperty("no-such-field"), OpIs, TextValue("x")))}

	g := e.Evaluate(context.Background(), q, engineRef)
	if g.Len() != 0 || g.Total() != 0 {
		t.Errorf("expected empty grouping, got %d buckets %d tasks", g.Len(), g.Total())
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	idx := newFakeIndex(engineTasks()...)
	e := newTestEngine(t, idx, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := e.Evaluate(ctx, DefaultQuery(), engineRef)
	if g.Total() != 0 {
		t.Errorf("Total = %d, want 0 with a cancelled context", g.Total())
	}
}

func TestEventsClearOptimizerMemo(t *testing.T) {
	idx := newFakeIndex(engineTasks()...)
	e := newTestEngine(t, idx, Options{})

	q := Query{Root: NewGroup(ConjAnd, NewCondition(PropStatus, OpIs, TextValue("open")))}

	e.Evaluate(context.Background(), q, engineRef)
	e.Evaluate(context.Background(), q, engineRef)
	if idx.statusLookups != 1 {
		t.Fatalf("status lookups = %d, want 1 while memoized", idx.statusLookups)
	}

	idx.emit(Event{Kind: EventRecordUpdated, Path: "inbox.md:1"})
	e.Evaluate(context.Background(), q, engineRef)
	if idx.statusLookups != 2 {
		t.Errorf("status lookups = %d, want 2 after a mutation event", idx.statusLookups)
	}
}

func TestSelectableValuesCaching(t *testing.T) {
	clk := newFakeClock()
	idx := newFakeIndex(engineTasks()...)
	e := newTestEngine(t, idx, Options{Clock: clk.Now})

	v := e.SelectableValues()
	if len(v.Statuses) != 3 {
		t.Fatalf("Statuses = %v, want 3 distinct", v.Statuses)
	}
	e.SelectableValues()
	if idx.allStatusCalls != 1 {
		t.Fatalf("index scans = %d, want 1 while cached", idx.allStatusCalls)
	}

	// A mutation right after the rebuild is throttled away.
	clk.Advance(10 * time.Second)
	idx.emit(Event{Kind: EventRecordUpdated, Path: "inbox.md:1"})
	e.SelectableValues()
	if idx.allStatusCalls != 1 {
		t.Fatalf("index scans = %d, want 1 after a young mutation", idx.allStatusCalls)
	}

	// Past the staleness window the same event drops the copy.
	clk.Advance(25 * time.Second)
	idx.emit(Event{Kind: EventRecordUpdated, Path: "inbox.md:1"})
	e.SelectableValues()
	if idx.allStatusCalls != 2 {
		t.Errorf("index scans = %d, want 2 after a stale mutation", idx.allStatusCalls)
	}
}

func TestIndexRebuildInvalidatesOptions(t *testing.T) {
	idx := newFakeIndex(engineTasks()...)
	e := newTestEngine(t, idx, Options{})

	e.SelectableValues()
	idx.emit(Event{Kind: EventIndexRebuilt})
	e.SelectableValues()
	if idx.allStatusCalls != 2 {
		t.Errorf("index scans = %d, want 2 after a rebuild", idx.allStatusCalls)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	idx := newFakeIndex(engineTasks()...)
	e := New(idx, Options{Logger: quietLogger()})

	q := Query{Root: NewGroup(ConjAnd, NewCondition(PropStatus, OpIs, TextValue("open")))}
	e.Evaluate(context.Background(), q, engineRef)

	e.Close()
	idx.emit(Event{Kind: EventRecordUpdated, Path: "inbox.md:1"})

	// The memo survives the event because nothing is listening anymore.
	e.Evaluate(context.Background(), q, engineRef)
	if idx.statusLookups != 1 {
		t.Errorf("status lookups = %d, want 1 after Close", idx.statusLookups)
	}
}

func TestEngineSweep(t *testing.T) {
	clk := newFakeClock()
	idx := newFakeIndex(engineTasks()...)
	e := newTestEngine(t, idx, Options{Clock: clk.Now, LookupTTL: 30 * time.Second})

	q := Query{Root: NewGroup(ConjAnd, NewCondition(PropStatus, OpIs, TextValue("open")))}
	e.Evaluate(context.Background(), q, engineRef)
	if e.lookups.Len() != 1 {
		t.Fatalf("memo entries = %d, want 1", e.lookups.Len())
	}

	clk.Advance(time.Minute)
	e.Sweep()
	if e.lookups.Len() != 0 {
		t.Errorf("memo entries = %d after Sweep, want 0", e.lookups.Len())
	}
}
