package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats its file.
const DefaultWatchInterval = 5 * time.Second

// ErrUnchanged is returned by [Watcher.Reload] when the file content matches
// the current config.
var ErrUnchanged = errors.New("config: file unchanged")

// fileState identifies one version of the config file.
type fileState struct {
	size  int64
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher keeps a config file's latest valid content. [Watcher.Run] polls
// the file; [Watcher.Reload] forces a read, e.g. on SIGHUP. A rejected edit
// is reported once and the previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	// reloadMu serialises reloads so onChange calls never overlap.
	reloadMu sync.Mutex

	mu       sync.Mutex
	current  *Config
	applied  fileState
	rejected [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a Watcher calling onChange (which may be
// nil) whenever a new valid version is picked up. Polling starts with Run.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.applied = cfg, st
	return w, nil
}

// Current returns the most recently applied config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done. A size or mtime change triggers a
// reload; content that hashes the same is ignored.
func (w *Watcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		info, err := os.Stat(w.path)
		if err != nil {
			slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
			continue
		}
		w.mu.Lock()
		same := info.Size() == w.applied.size && info.ModTime().Equal(w.applied.mtime)
		w.mu.Unlock()
		if same {
			continue
		}
		if _, err := w.Reload(); err != nil && !errors.Is(err, ErrUnchanged) {
			slog.Debug("config: reload skipped", "path", w.path, "err", err)
		}
	}
}

// Reload reads the file now. It returns the applied config, [ErrUnchanged]
// when the content is identical, or the validation error of a rejected
// edit.
func (w *Watcher) Reload() (*Config, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, st, err := w.read()
	w.mu.Lock()
	switch {
	case err != nil && st.sum != ([sha256.Size]byte{}) && st.sum == w.rejected:
		// Already reported this broken version; keep quiet until it changes.
		w.applied.size, w.applied.mtime = st.size, st.mtime
		w.mu.Unlock()
		return nil, err
	case err != nil:
		w.rejected = st.sum
		w.applied.size, w.applied.mtime = st.size, st.mtime
		w.mu.Unlock()
		slog.Warn("config: rejected edit, keeping previous config", "path", w.path, "err", err)
		return nil, err
	case st.sum == w.applied.sum:
		w.applied = st
		w.mu.Unlock()
		return nil, ErrUnchanged
	}
	old := w.current
	w.current, w.applied = cfg, st
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return cfg, nil
}

// read loads and validates the file. The returned state is filled as far as
// the file could be read, so a parse failure still reports its hash.
func (w *Watcher) read() (*Config, fileState, error) {
	var st fileState
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, st, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, st, err
	}
	st = fileState{size: info.Size(), mtime: info.ModTime(), sum: sha256.Sum256(data)}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, st, err
	}
	return cfg, st, nil
}
