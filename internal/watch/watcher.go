// Package watch observes a directory tree for file changes.
// It wraps fsnotify with recursive directory registration, ignore-glob
// filtering, and a debounce window so rapid editor saves collapse into a
// single change record.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vigil/internal/globs"
	"vigil/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of filesystem change.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
	OpRename Op = "rename"
)

// Change is a single settled filesystem change, path relative to the root.
type Change struct {
	Path string    `json:"path"`
	Op   Op        `json:"op"`
	Time time.Time `json:"time"`
}

// Stats tracks watcher activity for status reporting and debugging.
type Stats struct {
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	Ignored       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventOp   Op
}

// DefaultIgnorePatterns are always excluded from observation.
var DefaultIgnorePatterns = []string{
	".git/",
	".vigil/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	"**/*.swp",
	"**/*.swx",
	"**/*~",
	"**/.DS_Store",
	"**/*.log",
}

type pendingEvent struct {
	op   Op
	seen time.Time
}

// Watcher observes a root directory and emits batches of settled changes.
type Watcher struct {
	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	root      string
	ignore    []string
	pending   map[string]pendingEvent
	settleDur time.Duration
	changes   chan []Change
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool

	stats Stats
}

// New creates a Watcher for root. Extra ignore patterns are appended to
// DefaultIgnorePatterns.
func New(root string, ignore []string, settle time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	if settle <= 0 {
		settle = 500 * time.Millisecond
	}

	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(ignore))
	patterns = append(patterns, DefaultIgnorePatterns...)
	patterns = append(patterns, ignore...)

	return &Watcher{
		watcher:   fsw,
		root:      abs,
		ignore:    patterns,
		pending:   make(map[string]pendingEvent),
		settleDur: settle,
		changes:   make(chan []Change, 16),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Changes returns the channel of settled change batches.
func (w *Watcher) Changes() <-chan []Change {
	return w.changes
}

// Start registers the directory tree and begins the event loop.
// Non-blocking; the loop runs in a goroutine until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		logging.WatchError("initial tree registration failed: %v", err)
		// The run loop never started, so a later Stop must not wait on it.
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Watch("watching %s (%d dirs)", w.root, len(w.watcher.WatchList()))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.WatchError("error closing fsnotify watcher: %v", err)
	}
	logging.Watch("stopped")
}

// IsWatching returns true if the watcher is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats returns a snapshot of watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// addTree registers dir and every non-ignored subdirectory.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(path); rel != "." && w.ignored(rel+"/") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logging.WatchWarn("cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) ignored(rel string) bool {
	// A pattern like ".git/" must also suppress events on the directory
	// entry itself, so check both forms.
	if globs.MatchAny(w.ignore, rel) {
		return true
	}
	return globs.MatchAny(w.ignore, strings.TrimSuffix(rel, "/"))
}

// run is the main event loop.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	flushTicker := time.NewTicker(100 * time.Millisecond)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
			return

		case <-w.stopCh:
			logging.WatchDebug("stop signal received")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				logging.WatchDebug("event channel closed")
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				logging.WatchDebug("error channel closed")
				return
			}
			logging.WatchError("fsnotify error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-flushTicker.C:
			w.flushSettled()
		}
	}
}

// handleEvent records one raw fsnotify event into the pending map.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return // Ignore chmod, etc.
	}

	rel := w.rel(event.Name)

	if w.ignored(rel) {
		w.mu.Lock()
		w.stats.Ignored++
		w.mu.Unlock()
		return
	}

	// New directories must be registered so nested changes are seen.
	if op == OpCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logging.WatchWarn("cannot watch new dir %s: %v", event.Name, err)
			}
			return
		}
	}

	logging.WatchDebug("%s event for %s", op, rel)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = rel
	w.stats.LastEventOp = op

	switch op {
	case OpCreate:
		w.stats.FilesCreated++
	case OpModify:
		w.stats.FilesModified++
	case OpDelete, OpRename:
		w.stats.FilesDeleted++
	}

	// A delete after a create/modify wins; otherwise the first op sticks
	// so "create then write write write" stays a create.
	if prev, ok := w.pending[rel]; ok && op != OpDelete && op != OpRename {
		w.pending[rel] = pendingEvent{op: prev.op, seen: time.Now()}
		return
	}
	w.pending[rel] = pendingEvent{op: op, seen: time.Now()}
}

// flushSettled emits all pending events older than the settle window.
func (w *Watcher) flushSettled() {
	now := time.Now()

	w.mu.Lock()
	var batch []Change
	for path, ev := range w.pending {
		if now.Sub(ev.seen) >= w.settleDur {
			batch = append(batch, Change{Path: path, Op: ev.op, Time: ev.seen})
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	logging.Watch("flushing %d settled changes", len(batch))
	select {
	case w.changes <- batch:
	case <-w.stopCh:
	}
}
