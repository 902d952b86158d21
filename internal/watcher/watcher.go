// Package watcher feeds new and changed documents in a directory to the
// ingestion pipeline.
package watcher

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is reported.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports created or modified files that pass a filter.
type Watcher struct {
	fs       *fsnotify.Watcher
	accept   func(path string) bool
	debounce time.Duration
	log      *slog.Logger
}

// New creates a watcher. accept decides which paths are reported, usually
// the loader's Supports.
func New(accept func(path string) bool, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{fs: w, accept: accept, debounce: debounce, log: logger}, nil
}

// Watch starts monitoring dir. Each path is sent once its writes have been
// quiet for the debounce interval; bursts for one path collapse into one
// report. The channel closes when ctx ends or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan string, error) {
	if err := w.fs.Add(dir); err != nil {
		return nil, err
	}
	out := make(chan string, 100)
	go w.loop(ctx, out)
	return out, nil
}

func (w *Watcher) loop(ctx context.Context, out chan<- string) {
	defer close(out)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if w.accept != nil && !w.accept(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(pending)
			for _, p := range paths {
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fs.Close() }

// Run watches dir and hands every reported file to ingest, one at a time.
// A failed ingestion is passed to report and the watch goes on.
func Run(ctx context.Context, w *Watcher, dir string, ingest func(path string) error, report func(path string, err error)) error {
	paths, err := w.Watch(ctx, dir)
	if err != nil {
		return err
	}
	for p := range paths {
		err := ingest(p)
		if report != nil {
			report(p, err)
		}
	}
	return ctx.Err()
}
