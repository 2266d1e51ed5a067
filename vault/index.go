package vault

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/elcuervo/otq"
)

// Index is a markdown-vault implementation of the engine's TaskIndex
// contract. It owns every task record: checkbox lines in .md files, keyed
// by "relative/path.md:line". Lookups hand out snapshots; mutation flows in
// only through the filesystem.
type Index struct {
	root   string
	logger *slog.Logger
	now    func() time.Time // anchors the overdue set; swapped in tests

	mu      sync.RWMutex
	byPath  map[otq.Path]*otq.Task
	byFile  map[string][]otq.Path  // vault-relative file -> its task paths
	byState map[string]otq.PathSet // status key -> paths
	byDay   map[string]otq.PathSet // YYYY-MM-DD (due or scheduled) -> paths
	modTime map[string]time.Time   // parse cache validation, per file

	subMu   sync.Mutex
	subs    map[otq.EventKind]map[int]func(otq.Event)
	nextSub int

	watcher *watcher
}

// Open scans the vault, builds the index and starts watching for changes.
func Open(root string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root = filepath.Clean(root)

	idx := &Index{
		root:    root,
		logger:  logger,
		now:     time.Now,
		byPath:  make(map[otq.Path]*otq.Task),
		byFile:  make(map[string][]otq.Path),
		byState: make(map[string]otq.PathSet),
		byDay:   make(map[string]otq.PathSet),
		modTime: make(map[string]time.Time),
		subs:    make(map[otq.EventKind]map[int]func(otq.Event)),
	}
	if err := idx.Rebuild(); err != nil {
		return nil, err
	}

	w, err := newWatcher(root, idx.fileChanged, logger)
	if err != nil {
		return nil, err
	}
	idx.watcher = w
	return idx, nil
}

// Close stops the filesystem watcher.
func (idx *Index) Close() error {
	if idx.watcher != nil {
		return idx.watcher.Close()
	}
	return nil
}

// Rebuild rescans the whole vault and replaces the index, then emits a
// single index-rebuilt event.
func (idx *Index) Rebuild() error {
	files, err := scanVault(idx.root)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	idx.byPath = make(map[otq.Path]*otq.Task)
	idx.byFile = make(map[string][]otq.Path)
	idx.byState = make(map[string]otq.PathSet)
	idx.byDay = make(map[string]otq.PathSet)
	idx.modTime = make(map[string]time.Time)

	for _, file := range files {
		rel := idx.rel(file)
		tasks, err := parseFile(file, rel)
		if err != nil {
			idx.logger.Warn("skipping unreadable file", "file", rel, "err", err)
			continue
		}
		if info, err := os.Stat(file); err == nil {
			idx.modTime[rel] = info.ModTime()
		}
		for _, task := range tasks {
			idx.insertLocked(task)
		}
	}
	idx.mu.Unlock()

	idx.emit(otq.Event{Kind: otq.EventIndexRebuilt})
	return nil
}

func (idx *Index) rel(absPath string) string {
	if rel, err := filepath.Rel(idx.root, absPath); err == nil {
		return rel
	}
	return absPath
}

// insertLocked adds a task to every lookup structure. Caller holds mu.
func (idx *Index) insertLocked(task *otq.Task) {
	idx.byPath[task.Path] = task
	file := fileOf(task.Path)
	idx.byFile[file] = append(idx.byFile[file], task.Path)

	addSet(idx.byState, task.Status, task.Path)
	if task.Due != "" {
		addSet(idx.byDay, dayOf(task.Due), task.Path)
	}
	if task.Scheduled != "" {
		addSet(idx.byDay, dayOf(task.Scheduled), task.Path)
	}
}

// removeFileLocked drops every task of a file. Caller holds mu. Returns
// the removed paths.
func (idx *Index) removeFileLocked(rel string) []otq.Path {
	paths := idx.byFile[rel]
	for _, p := range paths {
		task := idx.byPath[p]
		if task == nil {
			continue
		}
		delete(idx.byPath, p)
		removeSet(idx.byState, task.Status, p)
		if task.Due != "" {
			removeSet(idx.byDay, dayOf(task.Due), p)
		}
		if task.Scheduled != "" {
			removeSet(idx.byDay, dayOf(task.Scheduled), p)
		}
	}
	delete(idx.byFile, rel)
	delete(idx.modTime, rel)
	return paths
}

// fileChanged is the watcher callback: reparse or drop one file and emit
// record-level events for the difference.
func (idx *Index) fileChanged(absPath string, removed bool) {
	rel := idx.rel(absPath)

	if removed {
		idx.mu.Lock()
		paths := idx.removeFileLocked(rel)
		idx.mu.Unlock()
		for _, p := range paths {
			idx.emit(otq.Event{Kind: otq.EventRecordDeleted, Path: p})
		}
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		idx.fileChanged(absPath, true)
		return
	}

	idx.mu.Lock()
	if prev, ok := idx.modTime[rel]; ok && !info.ModTime().After(prev) {
		// Parse cache hit: contents unchanged.
		idx.mu.Unlock()
		return
	}

	tasks, err := parseFile(absPath, rel)
	if err != nil {
		idx.mu.Unlock()
		idx.logger.Warn("skipping unreadable file", "file", rel, "err", err)
		return
	}

	before := make(map[otq.Path]struct{}, len(idx.byFile[rel]))
	for _, p := range idx.byFile[rel] {
		before[p] = struct{}{}
	}
	idx.removeFileLocked(rel)
	idx.modTime[rel] = info.ModTime()
	for _, task := range tasks {
		idx.insertLocked(task)
	}
	idx.mu.Unlock()

	var events []otq.Event
	for _, task := range tasks {
		if _, existed := before[task.Path]; existed {
			events = append(events, otq.Event{Kind: otq.EventRecordUpdated, Path: task.Path})
			delete(before, task.Path)
		} else {
			events = append(events, otq.Event{Kind: otq.EventRecordAdded, Path: task.Path})
		}
	}
	for p := range before {
		events = append(events, otq.Event{Kind: otq.EventRecordDeleted, Path: p})
	}
	for _, ev := range events {
		idx.emit(ev)
	}
}

// AllPaths returns the full path set.
func (idx *Index) AllPaths() otq.PathSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(otq.PathSet, len(idx.byPath))
	for p := range idx.byPath {
		out[p] = struct{}{}
	}
	return out
}

// PathsByStatus returns the paths holding a status key.
func (idx *Index) PathsByStatus(status string) otq.PathSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.byState[status].Clone()
}

// PathsByDate returns the paths due or scheduled on a UTC calendar day.
func (idx *Index) PathsByDate(day time.Time) otq.PathSet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.byDay[day.UTC().Format("2006-01-02")].Clone()
}

// OverduePaths returns the paths with a due day strictly before today.
// Completion is not consulted here: the set must stay a superset for the
// optimizer, which cannot know how the evaluator treats completed tasks.
func (idx *Index) OverduePaths() otq.PathSet {
	today := idx.now().UTC().Format("2006-01-02")

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(otq.PathSet)
	for day, paths := range idx.byDay {
		if day >= today {
			continue
		}
		for p := range paths {
			if task := idx.byPath[p]; task != nil && dayOf(task.Due) == day {
				out[p] = struct{}{}
			}
		}
	}
	return out
}

// TaskAt returns a snapshot of one record, nil if it no longer exists.
func (idx *Index) TaskAt(ctx context.Context, path otq.Path) (*otq.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.byPath[path].Clone(), nil
}

func (idx *Index) AllStatuses() []string {
	return idx.distinct(func(t *otq.Task) []string { return []string{t.Status} })
}
func (idx *Index) AllPriorities() []string {
	return idx.distinct(func(t *otq.Task) []string { return []string{t.Priority} })
}
func (idx *Index) AllContexts() []string {
	return idx.distinct(func(t *otq.Task) []string { return t.Contexts })
}
func (idx *Index) AllProjects() []string {
	return idx.distinct(func(t *otq.Task) []string { return t.Projects })
}
func (idx *Index) AllTags() []string {
	return idx.distinct(func(t *otq.Task) []string { return t.Tags })
}

func (idx *Index) AllFolders() []string {
	return idx.distinct(func(t *otq.Task) []string { return []string{t.Path.Folder()} })
}

func (idx *Index) distinct(values func(*otq.Task) []string) []string {
	idx.mu.RLock()
	seen := make(map[string]struct{})
	for _, task := range idx.byPath {
		for _, v := range values(task) {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
	}
	idx.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Subscribe registers a callback for one event kind. The returned function
// removes the subscription.
func (idx *Index) Subscribe(kind otq.EventKind, fn func(otq.Event)) func() {
	idx.subMu.Lock()
	defer idx.subMu.Unlock()

	if idx.subs[kind] == nil {
		idx.subs[kind] = make(map[int]func(otq.Event))
	}
	id := idx.nextSub
	idx.nextSub++
	idx.subs[kind][id] = fn

	return func() {
		idx.subMu.Lock()
		defer idx.subMu.Unlock()
		delete(idx.subs[kind], id)
	}
}

func (idx *Index) emit(ev otq.Event) {
	idx.subMu.Lock()
	fns := make([]func(otq.Event), 0, len(idx.subs[ev.Kind]))
	for _, fn := range idx.subs[ev.Kind] {
		fns = append(fns, fn)
	}
	idx.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func addSet(m map[string]otq.PathSet, key string, p otq.Path) {
	if m[key] == nil {
		m[key] = make(otq.PathSet)
	}
	m[key][p] = struct{}{}
}

func removeSet(m map[string]otq.PathSet, key string, p otq.Path) {
	if set, ok := m[key]; ok {
		delete(set, p)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func fileOf(p otq.Path) string {
	s := string(p)
	if i := lastColon(s); i >= 0 {
		return s[:i]
	}
	return s
}

func dayOf(value string) string {
	if len(value) >= 10 {
		return value[:10]
	}
	return value
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}
