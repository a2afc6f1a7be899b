package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-reads a config file on write and notifies subscribers of the
// new validated ServiceConfig, adapted from the teacher's
// HotReloadSystem (engine/internal/runtime/runtime.go): watch the
// containing directory (editors replace-then-rename rather than write in
// place), filter to the one path of interest, debounce, reload, compare.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	started bool
}

// NewWatcher constructs a Watcher for path. It does not start watching
// until Watch is called.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	return &Watcher{path: path, watcher: fw}, nil
}

// Watch begins watching and returns a channel of successfully reloaded,
// validated configs plus a channel of reload errors (bad YAML, failed
// validation). Both channels close when stop is closed or when the
// underlying fsnotify watcher's event or error channel closes.
func (w *Watcher) Watch(stop <-chan struct{}) (<-chan ServiceConfig, <-chan error) {
	changes := make(chan ServiceConfig, 4)
	errs := make(chan error, 4)

	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}
	w.started = true
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		errs <- fmt.Errorf("config: watch dir %q: %w", dir, err)
		close(changes)
		close(errs)
		return changes, errs
	}
	w.mu.Unlock()

	go func() {
		defer close(changes)
		defer close(errs)
		defer w.watcher.Close()

		var last *ServiceConfig
		var debounce *time.Timer
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, func() {
					cfg, err := w.reload()
					if err != nil {
						errs <- err
						return
					}
					if last != nil && last.Equal(cfg) {
						return
					}
					last = &cfg
					changes <- cfg
				})
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				errs <- fmt.Errorf("config: watch error: %w", err)
			}
		}
	}()

	return changes, errs
}

func (w *Watcher) reload() (ServiceConfig, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("config: read %q: %w", w.path, err)
	}
	return Load(data)
}
