// Package watch re-runs the styles pipeline when style sources change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/stylepipe/internal/source"
)

// RunFunc is the pipeline invoked after a change
type RunFunc func(ctx context.Context) error

// relevantOps are the event kinds that can change compiled output
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watcher watches a source tree and re-runs a pipeline on matching changes
type Watcher struct {
	root    string
	matcher *source.Matcher
	run     RunFunc
	logger  *slog.Logger

	runMu      sync.Mutex // guards runRunning and runPending
	runRunning bool       // whether a run is currently in progress
	runPending bool       // whether another run is needed after the current one

	debounce *debouncer
	ready    chan struct{}
}

// debouncer coalesces bursts of events into a single callback
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
	running  sync.WaitGroup
}

// New creates a watcher for root. pattern is matched against slash-separated
// paths relative to root.
func New(root, pattern string, delay time.Duration, run RunFunc, logger *slog.Logger) (*Watcher, error) {
	m, err := source.NewMatcher(pattern)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     root,
		matcher:  m,
		run:      run,
		logger:   logger,
		debounce: &debouncer{delay: delay},
		ready:    make(chan struct{}),
	}, nil
}

// Ready is closed once every existing directory is being watched
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. Pipeline failures are logged and
// never stop the watcher. Runs still in flight are awaited before Run
// returns.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("failed to watch source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch source directory: %s is not a directory", w.root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		_ = fw.Close()
	}()

	if _, err := w.addTree(fw, w.root); err != nil {
		return err
	}

	w.logger.Info("watching for changes",
		"dir", w.root,
		"pattern", w.matcher.String(),
		"debounce", w.debounce.delay)
	close(w.ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					return errors.New("file watcher closed")
				}
				w.handle(gctx, fw, ev)
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-fw.Errors:
				if !ok {
					return nil
				}
				w.logger.Warn("file watcher error", "error", err)
			}
		}
	})

	err = g.Wait()
	w.debounce.stop()

	w.logger.Info("stopped watching", "dir", w.root)
	return err
}

// handle dispatches a single filesystem event
func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&relevantOps == 0 {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			matched, err := w.addTree(fw, ev.Name)
			if err != nil {
				w.logger.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
			}
			if matched {
				w.schedule(ctx, ev.Name)
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	if !w.matcher.Match(rel) {
		w.logger.Debug("ignoring change", "path", rel, "op", ev.Op.String())
		return
	}

	w.logger.Debug("change detected", "path", rel, "op", ev.Op.String())
	w.schedule(ctx, rel)
}

// schedule triggers a debounced run
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.debounce.trigger(func() {
		w.logger.Info("change detected, rebuilding", "path", path)
		w.performRun(ctx)
	})
}

// addTree watches dir and all directories below it. It reports whether the
// tree already contains files matching the pattern.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) (bool, error) {
	matched := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			if rel, err := filepath.Rel(w.root, path); err == nil && w.matcher.Match(rel) {
				matched = true
			}
			return nil
		}

		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		w.logger.Debug("watching directory", "dir", path)
		return nil
	})
	return matched, err
}

// performRun executes the pipeline with single-flight semantics.
// If a run is already in progress, at most one additional run is queued;
// further concurrent requests are dropped.
func (w *Watcher) performRun(ctx context.Context) {
	w.runMu.Lock()
	if w.runRunning {
		w.runPending = true
		w.runMu.Unlock()
		w.logger.Info("build already in progress, queuing pending re-run")
		return
	}
	w.runRunning = true
	w.runMu.Unlock()

	for {
		if ctx.Err() != nil {
			w.runMu.Lock()
			w.runRunning = false
			w.runPending = false
			w.runMu.Unlock()
			return
		}

		if err := w.run(ctx); err != nil {
			w.logger.Error("build failed", "error", err)
		}

		w.runMu.Lock()
		if !w.runPending {
			w.runRunning = false
			w.runMu.Unlock()
			break
		}
		w.runPending = false
		w.runMu.Unlock()

		w.logger.Info("re-running build due to pending request")
	}
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		if cb != nil {
			d.running.Add(1)
		}
		d.mu.Unlock()

		if cb != nil {
			defer d.running.Done()
			cb()
		}
	})
}

// stop cancels a scheduled callback and waits for a running one to return.
// No callback runs after stop.
func (d *debouncer) stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.callback = nil
	d.mu.Unlock()

	d.running.Wait()
}
