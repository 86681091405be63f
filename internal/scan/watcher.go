package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/bcq/internal/debug"
)

// EventType is the latest kind of change seen for a path in a batch
type EventType int

const (
	EventWrite EventType = iota
	EventRemove
)

// Watcher rescans class files and archives under a root when they change.
// Events are batched until the tree has been quiet for the debounce period.
type Watcher struct {
	scanner  *Scanner
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	onReport func(*Report)
	onError  func(error)

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu  sync.RWMutex
	batches  int64
	events   int64
	lastScan time.Time
}

// WatchStats summarises watcher activity
type WatchStats struct {
	Batches  int64
	Events   int64
	LastScan time.Time
}

// NewWatcher watches root for changes that scanner should pick up
func NewWatcher(scanner *Scanner, root string, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Watcher{scanner: scanner, root: root, debounce: debounce, watcher: w}, nil
}

// OnReport sets the callback run after each rescan batch
func (w *Watcher) OnReport(fn func(*Report)) { w.onReport = fn }

// OnError sets the callback for watch and rescan errors
func (w *Watcher) OnError(fn func(error)) { w.onError = fn }

// Start adds watches under the root and begins processing events. Stop must
// be called to release them.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatches(w.root); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", w.root, err)
	}
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.processEvents(ctx)
	debug.LogScan("watching %s (debounce %v)\n", w.root, w.debounce)
	return nil
}

// Stop ends event processing. Pending events are dropped.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// Stats returns watcher activity counters
func (w *Watcher) Stats() WatchStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return WatchStats{Batches: w.batches, Events: w.events, LastScan: w.lastScan}
}

func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if real, err := filepath.EvalSymlinks(path); err == nil {
			if visited[real] {
				return filepath.SkipDir
			}
			visited[real] = true
		}
		if path != root && w.scanner.excluded(relPath(w.root, path)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			debug.LogScan("failed to watch %s: %v\n", path, err)
		}
		return nil
	})
}

func watchable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".class", ".jar", ".zip":
		return true
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]EventType)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.handleEvent(event, pending) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]EventType)
		}
	}
}

// handleEvent records a relevant event and reports whether the batch changed
func (w *Watcher) handleEvent(event fsnotify.Event, pending map[string]EventType) bool {
	path := event.Name
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if watchable(path) {
			pending[path] = EventRemove
			return true
		}
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !w.scanner.excluded(relPath(w.root, path)) {
			// pick up classes written before the watch was added
			if err := w.addWatches(path); err != nil {
				w.reportError(err)
			}
			_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
				if err == nil && !d.IsDir() && watchable(p) {
					pending[p] = EventWrite
				}
				return nil
			})
			return true
		}
		return false
	}
	if !watchable(path) || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	pending[path] = EventWrite
	return true
}

func (w *Watcher) flush(ctx context.Context, pending map[string]EventType) {
	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var changed []string
	for _, p := range paths {
		// a rewritten file is forgotten first so its new bytes are not
		// mistaken for duplicates of the old ones
		removed := w.scanner.RemoveSource(p)
		if len(removed) > 0 {
			debug.LogScan("dropped %d classes from %s\n", len(removed), p)
		}
		if pending[p] == EventWrite {
			changed = append(changed, p)
		}
	}

	rep := &Report{}
	if len(changed) > 0 {
		var err error
		rep, err = w.scanner.ScanFiles(ctx, w.root, changed...)
		if err != nil {
			w.reportError(err)
			return
		}
	}

	w.statsMu.Lock()
	w.batches++
	w.events += int64(len(pending))
	w.lastScan = time.Now()
	w.statsMu.Unlock()

	if w.onReport != nil {
		w.onReport(rep)
	}
}

func (w *Watcher) reportError(err error) {
	debug.LogScan("watch error: %v\n", err)
	if w.onError != nil {
		w.onError(err)
	}
}
