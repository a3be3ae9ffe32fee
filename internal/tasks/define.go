package tasks

import (
	"context"
	"fmt"

	"github.com/schaermu/stylepipe/internal/build"
	"github.com/schaermu/stylepipe/internal/watch"
)

// Names of the built-in tasks
const (
	Styles  = "styles"
	Clean   = "clean"
	Default = "default"
	Watch   = "watch"
)

// Builder is the part of build.Engine the tasks drive
type Builder interface {
	Run(ctx context.Context) (*build.Result, error)
	Clean(ctx context.Context) error
}

// Watcher blocks until its context is cancelled
type Watcher interface {
	Run(ctx context.Context) error
}

// WatcherFactory creates a watcher that calls run after each change
type WatcherFactory func(run watch.RunFunc) (Watcher, error)

// Options tune the built-in tasks
type Options struct {
	// Strict makes the styles task fail when any source fails to compile.
	// Watch re-runs never fail on compile errors.
	Strict bool
}

// Define registers styles, clean, default and watch
func Define(r *Registry, b Builder, newWatcher WatcherFactory, opts Options) error {
	styles := func(ctx context.Context, strict bool) error {
		result, err := b.Run(ctx)
		if err != nil {
			return err
		}
		if strict && result.Failed() {
			return fmt.Errorf("%d source(s) failed to compile: %w", len(result.Errors), result.Errors[0])
		}
		return nil
	}

	defs := []Task{
		{
			Name:        Styles,
			Description: "Compile, prefix and minify stylesheets",
			Action: func(ctx context.Context) error {
				return styles(ctx, opts.Strict)
			},
		},
		{
			Name:        Clean,
			Description: "Delete the output directory",
			Action:      b.Clean,
		},
		{
			Name:        Default,
			Description: "Run styles",
			Deps:        []string{Styles},
		},
		{
			Name:        Watch,
			Description: "Re-run styles whenever a source changes",
			Action: func(ctx context.Context) error {
				w, err := newWatcher(func(ctx context.Context) error {
					return styles(ctx, false)
				})
				if err != nil {
					return fmt.Errorf("failed to create watcher: %w", err)
				}
				return w.Run(ctx)
			},
		},
	}

	for _, t := range defs {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
