// Package watcher reports changes under the scripts directory so listings
// can be refreshed without manual rescans. Events are debounced: bulk copies
// and editors that write temp files produce one notification, not dozens.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// ChangedFunc is invoked after the directory settles following one or more
// filesystem events. It runs on the watcher goroutine.
type ChangedFunc func()

type Watcher struct {
	dir       string
	onChanged ChangedFunc
	debounce  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	quit    chan struct{}
	done    chan struct{}
	started bool
}

func New(dir string, onChanged ChangedFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, onChanged: onChanged, debounce: defaultDebounce, logger: logger}
}

// SetDebounce overrides the settle window. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Start begins watching the scripts directory and its immediate script
// folders. Safe to call once; subsequent calls are no-ops.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return err
	}
	// fsnotify watches are not recursive: add each existing script folder so
	// metadata edits inside them produce events too. New folders are added as
	// they appear in the loop.
	if entries, err := os.ReadDir(w.dir); err == nil {
		for _, e := range entries {
			if e.IsDir() && !ignored(e.Name()) {
				_ = fsw.Add(filepath.Join(w.dir, e.Name()))
			}
		}
	}

	w.fsw = fsw
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.started = true
	go w.loop(fsw, w.quit, w.done)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	quit, done, fsw := w.quit, w.done, w.fsw
	w.mu.Unlock()

	close(quit)
	_ = fsw.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		w.logger.Warn("watcher loop did not exit in time")
	}
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, quit, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-quit:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ignored(ev.Name) {
				continue
			}
			// Track new script folders so edits inside them are seen too.
			if ev.Op.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.dir) {
				_ = fsw.Add(ev.Name)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if w.onChanged != nil {
				w.onChanged()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

// ignored filters churn from interpreter caches and virtualenv builds.
func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".pyc") || strings.HasSuffix(base, ".tmp") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "__pycache__" || part == "venv" || part == ".venv" {
			return true
		}
	}
	return false
}
