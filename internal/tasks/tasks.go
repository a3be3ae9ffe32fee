// Package tasks holds the named tasks of a build and runs them with their
// dependencies.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Action is the work a task performs once its dependencies have run
type Action func(ctx context.Context) error

// Task is a named unit of work
type Task struct {
	Name        string
	Description string
	// Deps run before Action, in order.
	Deps []string
	// Action may be nil for tasks that only group dependencies.
	Action Action
}

// Registry holds tasks by name
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Register adds a task. Names must be unique and non-empty.
func (r *Registry) Register(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.Name]; ok {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	t.Deps = append([]string(nil), t.Deps...)
	r.tasks[t.Name] = t
	return nil
}

// Get looks up a task by name
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// List returns all tasks sorted by name
func (r *Registry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Runner executes tasks from a registry
type Runner struct {
	registry *Registry
}

// NewRunner creates a runner for r
func NewRunner(r *Registry) *Runner {
	return &Runner{registry: r}
}

// Run executes the named task after its dependencies. Each task runs at
// most once per call; dependency cycles are reported as errors before
// anything runs.
func (r *Runner) Run(ctx context.Context, name string) error {
	order, err := r.plan(name)
	if err != nil {
		return err
	}

	for _, t := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.Action == nil {
			continue
		}
		if err := t.Action(ctx); err != nil {
			return fmt.Errorf("task %q failed: %w", t.Name, err)
		}
	}
	return nil
}

// Start runs the named task in the background
func (r *Runner) Start(ctx context.Context, name string) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = r.Run(ctx, name)
	}()
	return h
}

// plan resolves the depth-first execution order for name
func (r *Runner) plan(name string) ([]Task, error) {
	var order []Task
	visited := make(map[string]bool)
	var stack []string

	var visit func(string) error
	visit = func(n string) error {
		for i, s := range stack {
			if s == n {
				cycle := append(append([]string(nil), stack[i:]...), n)
				return fmt.Errorf("task dependency cycle: %s", strings.Join(cycle, " -> "))
			}
		}
		if visited[n] {
			return nil
		}

		t, ok := r.registry.Get(n)
		if !ok {
			if len(stack) > 0 {
				return fmt.Errorf("task %q depends on unknown task %q", stack[len(stack)-1], n)
			}
			return fmt.Errorf("unknown task %q", n)
		}

		stack = append(stack, n)
		for _, dep := range t.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]

		visited[n] = true
		order = append(order, t)
		return nil
	}

	if err := visit(name); err != nil {
		return nil, err
	}
	return order, nil
}

// Handle tracks a task started with Runner.Start
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed when the task has finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes or ctx is done
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's error once Done is closed, nil before that
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
