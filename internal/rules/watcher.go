package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store whenever its rules file changes on disk.
type Watcher struct {
	store    *Store
	path     string
	debounce time.Duration
	log      *slog.Logger

	// reloaded, if set, receives the stats of every successful reload.
	reloaded func(Stats)
}

type WatcherOptions struct {
	Debounce time.Duration
	Logger   *slog.Logger
	OnReload func(Stats)
}

func NewWatcher(store *Store, path string, opts WatcherOptions) (*Watcher, error) {
	if store == nil {
		return nil, errors.New("nil store")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("missing rules path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		store:    store,
		path:     abs,
		debounce: debounce,
		log:      logger,
		reloaded: opts.OnReload,
	}, nil
}

// Run blocks until ctx is done. The parent directory is watched rather than
// the file so that editors that replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.log.Info("rules watcher started", "path", w.path, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("rules watcher error", "error", err)

		case <-timer.C:
			st, err := w.store.LoadFile(w.path)
			if err != nil {
				w.log.Warn("rules reload failed", "path", w.path, "error", err)
				continue
			}
			if w.reloaded != nil {
				w.reloaded(st)
			}
		}
	}
}
