package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent signals that a watched roster file changed on disk.
type ReloadEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher watches the agents roster file and reports changes. The
// consumer decides what a change means (typically a non-forced reload).
type Watcher struct {
	paths  []string
	logger *slog.Logger
	events chan ReloadEvent
}

// NewWatcher watches the given path, or the default search paths when
// path is empty.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	paths := []string{path}
	if path == "" {
		paths = AgentsSearchPaths()
	}
	return &Watcher{
		paths:  paths,
		logger: logger,
		events: make(chan ReloadEvent, 16),
	}
}

// Events returns the change notification channel. It is closed when
// the watcher stops.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching until ctx is cancelled. Paths that do not
// exist yet are skipped; editors that replace the file on save still
// trigger through the Create and Rename ops.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, p := range w.paths {
		_ = fsw.Add(p)
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case w.events <- ReloadEvent{Path: ev.Name, Op: ev.Op}:
				default:
				}
				w.logger.Info("agents file changed", "path", ev.Name, "op", ev.Op.String())
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("agents watcher error", "error", err)
			}
		}
	}()
	return nil
}
