package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ziadkadry99/docindex/internal/logging"
)

// DefaultDebounce is how long a path must stay quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// EventKind classifies a settled filesystem change.
type EventKind string

const (
	EventChanged EventKind = "changed"
	EventRemoved EventKind = "removed"
)

// Event is a debounced change to an ingestible file.
type Event struct {
	Kind       EventKind
	Path       string
	Collection string
	ID         string
	// Entry is set for EventChanged.
	Entry Entry
}

// Watcher reports changes under a Source's roots.
type Watcher struct {
	src      *Source
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher watches every directory under the source roots.
func NewWatcher(src *Source, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("walker: creating watcher: %w", err)
	}
	w := &Watcher{src: src, fsw: fsw, debounce: debounce, logger: logging.OrDiscard(logger).With("component", "watcher")}
	for _, r := range src.Roots() {
		if err := w.addTree(r.Path); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("walker: watching %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && shouldExcludeDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("walker: watching %s: %w", path, err)
		}
		return nil
	})
}

// Run delivers events to handle until ctx ends. Bursts of writes to one
// path collapse into a single event once the path is quiet.
func (w *Watcher) Run(ctx context.Context, handle func(context.Context, Event)) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			for path := range pending {
				if ev, ok := w.classify(path); ok {
					handle(ctx, ev)
				}
			}
			clear(pending)
		}
	}
}

// classify turns a settled path into an event, or reports false for
// paths the source does not ingest.
func (w *Watcher) classify(path string) (Event, bool) {
	entry, err := w.src.Read(path)
	switch {
	case err == nil:
		return Event{Kind: EventChanged, Path: entry.Path, Collection: entry.Collection, ID: entry.ID, Entry: entry}, true
	case errors.Is(err, fs.ErrNotExist):
		root, rel, ok := w.src.Locate(path)
		if !ok || !root.accepts(rel) {
			return Event{}, false
		}
		return Event{Kind: EventRemoved, Path: path, Collection: root.Collection, ID: ID(root.Collection, rel)}, true
	case errors.Is(err, ErrSkipped):
		return Event{}, false
	default:
		w.logger.Warn("cannot read changed file", "path", path, "error", err)
		return Event{}, false
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
