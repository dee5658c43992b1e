package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ReloadFunc receives the previous and the newly loaded configuration. It is
// called from the watcher goroutine, never concurrently with itself.
type ReloadFunc func(old, new *Config)

// Watcher polls the config file and hands every valid content change to a
// [ReloadFunc]. An unreadable or invalid file is logged and skipped; the last
// valid config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte
	modTime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Default: slog.Default().
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path once and returns a watcher for it. Polling starts
// with [Watcher.Run].
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.sum, w.modTime = snap.cfg, snap.sum, snap.modTime
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done and returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

type snapshot struct {
	cfg     *Config
	sum     [sha256.Size]byte
	modTime time.Time
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config reload: stat failed", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.modTime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	snap, err := w.read()
	if err != nil {
		w.log.Warn("config reload: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.modTime = snap.modTime
	if snap.sum == w.sum {
		// Touched, same content.
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.sum = snap.cfg, snap.sum
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(old, snap.cfg)
	}
}

func (w *Watcher) read() (snapshot, error) {
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
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), modTime: info.ModTime()}, nil
}
