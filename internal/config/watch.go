package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a settings file into a Store whenever it changes.
// Turns already running keep the snapshot they started with.
type Watcher struct {
	path    string
	store   *Store
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	onApply func(Settings)
}

// NewWatcher watches the directory containing path, so the file may be
// created or replaced after startup.
func NewWatcher(path string, store *Store, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:    filepath.Clean(path),
		store:   store,
		logger:  logger,
		watcher: fw,
	}, nil
}

// OnApply registers a callback run after each successful reload.
func (w *Watcher) OnApply(fn func(Settings)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onApply = fn
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("settings watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	s, err := LoadSettings(w.path)
	if err != nil {
		w.logger.Warn("settings reload failed, keeping previous settings", "file", w.path, "error", err)
		return
	}
	w.store.Set(s)
	w.logger.Info("settings reloaded", "file", w.path, "provider", s.Provider, "model", s.Model)

	w.mu.Lock()
	fn := w.onApply
	w.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
