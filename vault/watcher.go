package vault

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Editors save in bursts; coalesce per-file events before reparsing.
const debounceDelay = 200 * time.Millisecond

// watcher wraps fsnotify to watch vault directories and report .md file
// changes to a single callback.
type watcher struct {
	fs      *fsnotify.Watcher
	root    string
	changed func(path string, removed bool)
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// newWatcher watches every non-hidden directory under root and starts the
// event loop.
func newWatcher(root string, changed func(path string, removed bool), logger *slog.Logger) (*watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		fs.Add(path)
		return nil
	})

	w := &watcher{
		fs:      fs,
		root:    root,
		changed: changed,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
	}
	go w.loop()
	return w, nil
}

func (w *watcher) loop() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("vault watcher error", "err", err)
		}
	}
}

func (w *watcher) handle(event fsnotify.Event) {
	// New directories need watching too.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				w.fs.Add(event.Name)
			}
			return
		}
	}

	if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
		return
	}

	removed := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	if removed {
		// Deletions fire immediately; only writes are debounced.
		w.cancelTimer(event.Name)
		w.changed(event.Name, true)
		return
	}

	w.debounce(event.Name)
}

// debounce starts or resets the per-file timer.
func (w *watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() {
		w.cancelTimer(path)
		w.changed(path, false)
	})
}

func (w *watcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
		delete(w.timers, path)
	}
}

// Close stops the watcher and every pending debounce timer.
func (w *watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fs.Close()
}
