package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startWatcher runs w in the background and waits until it is ready. The
// returned stop function cancels it and returns Run's error.
func startWatcher(t *testing.T, w *Watcher) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()

	select {
	case <-w.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("watcher did not become ready")
	}

	var once sync.Once
	var stopErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case stopErr = <-errCh:
			case <-time.After(5 * time.Second):
				stopErr = errors.New("watcher did not stop")
			}
		})
		return stopErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func waitForRuns(t *testing.T, runs <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatalf("expected %d runs, saw %d", n, i)
		}
	}
}

func TestWatcher_RerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.scss"), "a {}")

	runs := make(chan struct{}, 10)
	w, err := New(dir, "**/*.scss", 20*time.Millisecond, func(context.Context) error {
		runs <- struct{}{}
		return nil
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	stop := startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "a.scss"), "a { color: red; }")
	waitForRuns(t, runs, 1)

	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()

	runs := make(chan struct{}, 10)
	w, err := New(dir, "**/*.scss", 20*time.Millisecond, func(context.Context) error {
		runs <- struct{}{}
		return nil
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "partials", "_grid.scss"), ".grid {}")
	waitForRuns(t, runs, 1)

	// the new directory must now be watched on its own
	writeFile(t, filepath.Join(dir, "partials", "_grid.scss"), ".grid { gap: 1px; }")
	waitForRuns(t, runs, 1)
}

func TestWatcher_IgnoresNonMatching(t *testing.T) {
	dir := t.TempDir()

	var count atomic.Int32
	w, err := New(dir, "**/*.scss", 10*time.Millisecond, func(context.Context) error {
		count.Add(1)
		return nil
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	writeFile(t, filepath.Join(dir, "a.css"), "a {}")
	time.Sleep(200 * time.Millisecond)

	if n := count.Load(); n != 0 {
		t.Errorf("expected no runs for non-matching files, got %d", n)
	}
}

func TestWatcher_BuildErrorsDoNotStop(t *testing.T) {
	dir := t.TempDir()

	runs := make(chan struct{}, 10)
	w, err := New(dir, "*.scss", 10*time.Millisecond, func(context.Context) error {
		runs <- struct{}{}
		return errors.New("compile failed")
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	stop := startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "a.scss"), "a {")
	waitForRuns(t, runs, 1)

	writeFile(t, filepath.Join(dir, "a.scss"), "a {}")
	waitForRuns(t, runs, 1)

	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), "**/*.scss", 0, func(context.Context) error { return nil }, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	if _, err := New(t.TempDir(), "[", 0, nil, testLogger()); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestDebouncer(t *testing.T) {
	var mu sync.Mutex
	callCount := 0

	d := &debouncer{delay: 50 * time.Millisecond}

	// Trigger multiple times rapidly
	for i := 0; i < 5; i++ {
		d.trigger(func() {
			mu.Lock()
			callCount++
			mu.Unlock()
		})
		time.Sleep(10 * time.Millisecond)
	}

	// Wait for debounce to complete
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	count := callCount
	mu.Unlock()

	if count != 1 {
		t.Errorf("expected callback to be called once, got %d", count)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var called atomic.Bool
	d := &debouncer{delay: 50 * time.Millisecond}

	d.trigger(func() { called.Store(true) })
	d.stop()
	time.Sleep(100 * time.Millisecond)

	if called.Load() {
		t.Error("callback ran after stop")
	}
}

// TestPerformRun_SingleFlight verifies that concurrent performRun calls run
// at most one build at a time and queue at most one more.
func TestPerformRun_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	var runs atomic.Int32

	w, err := New(t.TempDir(), "**/*.scss", 0, func(context.Context) error {
		runs.Add(1)
		once.Do(func() { close(started) })
		<-proceed
		return nil
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.performRun(ctx)
	}()

	<-started

	// Only one of these should queue a pending re-run; the rest are dropped.
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.performRun(ctx)
		}()
	}
	wg.Wait()

	w.runMu.Lock()
	pending := w.runPending
	w.runMu.Unlock()
	if !pending {
		t.Error("expected runPending to be true after concurrent performRun calls")
	}

	close(proceed)
	<-done

	if n := runs.Load(); n != 2 {
		t.Errorf("expected 2 runs (initial + one queued), got %d", n)
	}

	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.runRunning || w.runPending {
		t.Error("expected idle state after all runs completed")
	}
}
