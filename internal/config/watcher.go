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

// DefaultPollInterval is how often [Watcher.Run] looks at the config file.
const DefaultPollInterval = 5 * time.Second

// fingerprint identifies one version of the config file on disk. A changed
// mtime alone does not count as a change; editors and deploy tools touch
// files freely.
type fingerprint struct {
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

func (f fingerprint) sameFile(info os.FileInfo) bool {
	return info.ModTime().Equal(f.modTime) && info.Size() == f.size
}

// Watcher keeps the gateway's voice profile and token settings in step with
// the config file. Changes are picked up by polling in [Watcher.Run] or on
// demand through [Watcher.Reload] (the gateway binds that to SIGHUP).
//
// A file that fails to parse or validate is logged and skipped; the last
// good config stays current. Environment overrides are reapplied to every
// version, so a voice pinned by HALLVOICE_* stays pinned.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	lookup   func(string) (string, bool)
	log      *slog.Logger

	// reload serialises Reload calls so onChange sees versions in order.
	reload sync.Mutex

	mu       sync.Mutex
	current  *Config
	seen     fingerprint
	rejected fingerprint // last version that failed, reported once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultPollInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnvLookup replaces [os.LookupEnv] for override resolution.
func WithEnvLookup(lookup func(string) (string, bool)) WatcherOption {
	return func(w *Watcher) {
		if lookup != nil {
			w.lookup = lookup
		}
	}
}

// WithWatcherLogger sets the logger used for reload reports.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path once and returns a watcher holding it. onChange may
// be nil. Nothing is polled until [Watcher.Run] is called.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultPollInterval,
		onChange: onChange,
		lookup:   os.LookupEnv,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, fp
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done. Always returns nil, so it can sit in
// an errgroup next to the server without tearing it down.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Reload(); err != nil {
				w.log.Warn("config reload rejected, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Reload checks the file now. It reports whether a new config was accepted.
// An unchanged file yields (false, nil); an unreadable or invalid one yields
// the error and leaves [Watcher.Current] untouched.
func (w *Watcher) Reload() (bool, error) {
	w.reload.Lock()
	defer w.reload.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("config: stat %s: %w", w.path, err)
	}
	w.mu.Lock()
	seen, rejected := w.seen, w.rejected
	w.mu.Unlock()
	if seen.sameFile(info) || rejected.sameFile(info) {
		return false, nil
	}

	cfg, fp, err := w.read()
	if err != nil {
		w.mu.Lock()
		w.rejected = fingerprint{modTime: info.ModTime(), size: info.Size()}
		w.mu.Unlock()
		return false, err
	}

	w.mu.Lock()
	if fp.sum == w.seen.sum {
		w.seen = fp
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.seen = cfg, fp
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

// read loads, overrides and validates the file.
func (w *Watcher) read() (*Config, fingerprint, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}

	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	ApplyEnv(cfg, w.lookup)
	if err := Validate(cfg); err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{modTime: info.ModTime(), size: int64(len(data)), sum: sha256.Sum256(data)}, nil
}
