// Package watcher observes the intake directory for arriving scans. Fax
// gateways write large files slowly, so a newly seen file is only
// announced after its size has stopped changing.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scanprep/scanprep/internal/render"
)

// Config controls directory watching.
type Config struct {
	// StablePolls is how many consecutive unchanged size checks a file
	// needs before it counts as fully written.
	StablePolls int `mapstructure:"stable_polls" yaml:"stable_polls" json:"stable_polls"`
	// PollInterval is the delay between size checks.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
}

// DefaultConfig provides the documented defaults.
func DefaultConfig() Config {
	return Config{
		StablePolls:  3,
		PollInterval: 500 * time.Millisecond,
	}
}

// Watcher announces stable, supported files appearing in a directory.
type Watcher struct {
	cfg Config
	dir string
}

// New builds a Watcher for dir.
func New(dir string, cfg Config) *Watcher {
	if cfg.StablePolls < 1 {
		cfg.StablePolls = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Watcher{cfg: cfg, dir: dir}
}

// Watch sends the path of every supported file that lands in the
// directory on out, after waiting for it to stabilize. Files already
// present at start are announced first. Watch blocks until ctx is done.
func (w *Watcher) Watch(ctx context.Context, out chan<- string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	if err := w.announceExisting(ctx, out); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !render.IsSupported(event.Name) {
				continue
			}
			if err := w.announce(ctx, event.Name, out); err != nil {
				return err
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

// announceExisting picks up files that arrived before the watch began.
func (w *Watcher) announceExisting(ctx context.Context, out chan<- string) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if !render.IsSupported(path) {
			continue
		}
		if err := w.announce(ctx, path, out); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) announce(ctx context.Context, path string, out chan<- string) error {
	if err := WaitForStable(ctx, path, w.cfg.PollInterval, w.cfg.StablePolls); err != nil {
		slog.Warn("file never stabilized, skipping", "path", path, "error", err)
		return nil
	}
	select {
	case out <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForStable blocks until the file's size stays unchanged for polls
// consecutive checks. A file that disappears mid-wait is an error.
func WaitForStable(ctx context.Context, path string, interval time.Duration, polls int) error {
	var lastSize int64 = -1
	stable := 0

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() == lastSize {
			stable++
			if stable >= polls {
				return nil
			}
		} else {
			stable = 0
			lastSize = info.Size()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
