package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces bursts of filesystem events from editors that
// write-then-rename.
const debounceWindow = 500 * time.Millisecond

// Watcher re-reads the config file on change and pushes the new config
// into the Holder. A reload is only announced when the canonical
// serialised form actually differs, so editor re-saves of equivalent
// content are ignored.
type Watcher struct {
	holder   *Holder
	onChange func(*Config)
	lastSeen string
}

// NewWatcher creates a Watcher. onChange may be nil; when set it runs
// after each accepted reload with the new config.
func NewWatcher(holder *Holder, onChange func(*Config)) (*Watcher, error) {
	canon, err := holder.Get().Canonical()
	if err != nil {
		return nil, err
	}
	return &Watcher{holder: holder, onChange: onChange, lastSeen: canon}, nil
}

// Run watches until ctx is cancelled. The parent directory is watched
// rather than the file itself so atomic rename saves keep working.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.holder.Path())
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	target := filepath.Base(w.holder.Path())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFrom(w.holder.Path())
	if err != nil {
		slog.Warn("config reload failed, keeping previous config", "error", err)
		return
	}
	canon, err := cfg.Canonical()
	if err != nil {
		slog.Warn("config canonicalise failed", "error", err)
		return
	}
	if canon == w.lastSeen {
		slog.Debug("config unchanged after re-save, ignoring")
		return
	}
	w.lastSeen = canon
	w.holder.Replace(cfg)
	slog.Info("config reloaded", "accounts", len(cfg.Accounts))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
