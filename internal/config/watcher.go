package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// snapshot is one loaded, validated config together with the file state it
// was read from, used to detect subsequent changes.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher polls a config file and reports hot-reloadable changes as a
// [ConfigDiff]. Invalid rewrites are logged and ignored: the last valid
// snapshot stays in effect until the file parses again. Edits that only
// touch restart-bound settings (providers, listen address) update the
// snapshot silently without invoking the callback.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(ConfigDiff, *Config)
	logger   *slog.Logger

	mu   sync.Mutex
	snap snapshot

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Defaults to [slog.Default].
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher loads the config at path and starts polling it in a background
// goroutine. onReload receives the diff and the new config whenever a valid,
// hot-reloadable change lands on disk.
func NewWatcher(path string, onReload func(ConfigDiff, *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.snap = snap

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.cfg
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if diff, cfg, ok := w.reload(); ok && w.onReload != nil {
				w.onReload(diff, cfg)
			}
		}
	}
}

// reload re-reads the file when its mtime moved and swaps in the new
// snapshot. It reports whether the callback should fire, which requires
// both a content change and at least one hot-reloadable difference.
func (w *Watcher) reload() (ConfigDiff, *Config, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("config watcher: cannot stat file", "path", w.path, "error", err)
		return ConfigDiff{}, nil, false
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.snap.mtime)
	w.mu.Unlock()
	if unchanged {
		return ConfigDiff{}, nil, false
	}

	next, err := w.load()
	if err != nil {
		w.logger.Warn("config watcher: keeping previous config", "path", w.path, "error", err)
		return ConfigDiff{}, nil, false
	}

	w.mu.Lock()
	prev := w.snap
	if next.sum == prev.sum {
		// Touched but identical content.
		w.snap.mtime = next.mtime
		w.mu.Unlock()
		return ConfigDiff{}, nil, false
	}
	w.snap = next
	w.mu.Unlock()

	diff := Diff(prev.cfg, next.cfg)
	w.logger.Info("config watcher: configuration reloaded",
		"path", w.path, "applied", diff.Any())
	return diff, next.cfg, diff.Any()
}

// load reads, parses, and validates the config file, capturing the content
// hash and mtime for change detection.
func (w *Watcher) load() (snapshot, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
