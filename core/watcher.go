package core

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DebounceWindow coalesces events for the same path into one refresh.
	DebounceWindow = 250 * time.Millisecond
	// SuppressionTTL is how long an editor self-write shadows echo events.
	SuppressionTTL = 2 * time.Second
)

// Watcher observes the project tree recursively and forwards debounced
// change notifications to the index. It holds no index lock itself; batches
// go through RefreshPaths on a dedicated goroutine.
type Watcher struct {
	ix       *Index
	debugLog func(format string, args ...any)

	mu         sync.Mutex
	pending    map[string]bool
	timer      *time.Timer
	suppressed map[string]time.Time

	fw   *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher for the index's project root. The debug
// logger may be nil. Call Start to begin watching.
func NewWatcher(ix *Index, debugLog func(format string, args ...any)) *Watcher {
	if debugLog == nil {
		debugLog = func(string, ...any) {}
	}
	return &Watcher{
		ix:         ix,
		debugLog:   debugLog,
		pending:    make(map[string]bool),
		suppressed: make(map[string]time.Time),
		done:       make(chan struct{}),
	}
}

// Start initializes the filesystem watch over the whole tree and launches
// the event loop.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return Errf(KindIOError, "starting filesystem watcher: %v", err)
	}
	w.mu.Lock()
	w.fw = fw
	w.mu.Unlock()
	if err := w.watchTree(w.ix.Root()); err != nil {
		fw.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() {
	close(w.done)
	w.mu.Lock()
	fw := w.fw
	w.mu.Unlock()
	if fw != nil {
		fw.Close()
	}
	w.wg.Wait()
}

// Suppress marks a path so that the next watch events for it, arriving
// within the suppression window, are dropped. The editor calls this right
// after persisting its own write.
func (w *Watcher) Suppress(relPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suppressed[relPath] = time.Now().Add(SuppressionTTL)
}

// watchTree adds watches on the root and every non-excluded subdirectory.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (excludedDirNames[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			w.debugLog("watch add failed for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				w.reinit()
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				w.reinit()
				return
			}
			w.debugLog("watch error: %v", err)
		}
	}
}

// handleEvent classifies one raw event and enqueues the affected path.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// New directories must be watched before their contents change.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			name := filepath.Base(ev.Name)
			if !excludedDirNames[name] && !strings.HasPrefix(name, ".") {
				if err := w.watchTree(ev.Name); err != nil {
					w.debugLog("watch add failed for %s: %v", ev.Name, err)
				}
			}
			return
		}
	}

	if !IsMarkupFile(ev.Name) {
		return
	}
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	w.Enqueue(w.ix.Rel(ev.Name))
}

// Enqueue adds a changed path to the pending set and arms the debounce
// timer. Suppressed paths are dropped.
func (w *Watcher) Enqueue(relPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if until, ok := w.suppressed[relPath]; ok {
		if time.Now().Before(until) {
			w.debugLog("suppressed echo event for %s", relPath)
			return
		}
		delete(w.suppressed, relPath)
	}

	w.pending[relPath] = true
	if w.timer == nil {
		w.timer = time.AfterFunc(DebounceWindow, w.flush)
	} else {
		w.timer.Reset(DebounceWindow)
	}
}

// flush hands the accumulated batch to the index.
func (w *Watcher) flush() {
	w.mu.Lock()
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]bool)
	w.timer = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	w.debugLog("refreshing %d changed path(s)", len(batch))
	if err := w.ix.RefreshPaths(batch); err != nil {
		w.debugLog("refresh failed: %v", err)
	}
}

// Pending returns a snapshot of the queued paths, for introspection.
func (w *Watcher) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	return out
}

// reinit recovers from a dropped watch: a fresh fsnotify instance over the
// whole tree, followed by a full rebuild so nothing missed in the gap stays
// stale.
func (w *Watcher) reinit() {
	select {
	case <-w.done:
		return
	default:
	}
	w.debugLog("watch dropped, reinitializing")

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.debugLog("watcher reinit failed: %v", err)
		return
	}
	w.mu.Lock()
	select {
	case <-w.done:
		// Stop won the race; it already closed the previous watcher and
		// will never see this one.
		w.mu.Unlock()
		fw.Close()
		return
	default:
	}
	w.fw = fw
	w.mu.Unlock()
	if err := w.watchTree(w.ix.Root()); err != nil {
		w.debugLog("watcher reinit failed: %v", err)
	}
	if err := w.ix.Build(); err != nil {
		w.debugLog("full rebuild after reinit failed: %v", err)
	}

	w.wg.Add(1)
	go w.loop()
}
