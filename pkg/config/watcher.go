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

// ReloadFunc receives every successfully loaded configuration.
type ReloadFunc func(*Config) error

// Watcher watches the configuration file and hands each valid reload to a
// callback. Callers decide which sections they honour; the gateway only
// applies rate limit policies.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	reload   ReloadFunc
	observe  func(error)
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	timer   *time.Timer
}

// WatcherOption customises a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets how long to wait for writes to settle. Default 1s.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadObserver registers fn to be told the outcome of each reload.
func WithReloadObserver(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.observe = fn }
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		path:     absPath,
		watcher:  fsw,
		reload:   reload,
		logger:   slog.Default(),
		debounce: time.Second,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The parent directory is watched because editors
// often replace the file through a rename.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	w.logger.Info("config watcher started", "config_path", w.path)
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	return w.watcher.Close()
}

// Reload loads the file now and invokes the callback.
func (w *Watcher) Reload() error {
	start := time.Now()
	cfg, err := Load(w.path)
	if err == nil {
		err = w.reload(cfg)
	}
	if w.observe != nil {
		w.observe(err)
	}
	if err != nil {
		w.logger.Error("config reload failed", "error", err, "duration", time.Since(start))
		return err
	}
	w.logger.Info("config reloaded", "config_path", w.path, "duration", time.Since(start))
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)

		case <-w.stopCh:
			return

		case <-ctx.Done():
			_ = w.Stop()
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { _ = w.Reload() })
}
