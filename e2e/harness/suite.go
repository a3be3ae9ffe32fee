//go:build e2e

package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/schaermu/stylepipe/internal/testutil"
)

const (
	defaultTimeout    = 5 * time.Minute
	defaultSass       = "sass"
	defaultConfigName = "stylepipe.yaml"
)

// Suite runs the stylepipe binary against a temporary project
type Suite struct {
	// immutable config
	Name        string
	Timeout     time.Duration
	KeepProject bool
	Sass        string

	// runtime state
	BinaryPath string
	ProjectDir string

	// optional logger hook
	Logf func(format string, args ...any)

	// test reference
	t *testing.T
}

// SuiteOption configures a Suite
type SuiteOption func(*Suite)

// WithTimeout sets a custom suite timeout
func WithTimeout(d time.Duration) SuiteOption {
	return func(s *Suite) { s.Timeout = d }
}

// WithKeepProject keeps the project directory when the test fails
func WithKeepProject(v bool) SuiteOption {
	return func(s *Suite) { s.KeepProject = v }
}

// WithSass sets the sass executable used by the project config
func WithSass(command string) SuiteOption {
	return func(s *Suite) { s.Sass = command }
}

// WithLogf sets a custom logger
func WithLogf(logf func(string, ...any)) SuiteOption {
	return func(s *Suite) { s.Logf = logf }
}

// NewSuite creates a new E2E test suite
func NewSuite(name string, t *testing.T, opts ...SuiteOption) *Suite {
	s := &Suite{
		Name:        name,
		Timeout:     defaultTimeout,
		KeepProject: os.Getenv("E2E_KEEP_PROJECT") == "1",
		Sass:        defaultSass,
		t:           t,
		Logf:        t.Logf,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Check for env overrides
	if sass := os.Getenv("E2E_SASS"); sass != "" {
		s.Sass = sass
	}
	if timeout := os.Getenv("E2E_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			s.Timeout = d
		}
	}

	return s
}

// RequireSass skips the test when the sass executable cannot be found
func (s *Suite) RequireSass() {
	s.t.Helper()
	path, err := exec.LookPath(s.Sass)
	if err != nil {
		s.t.Skipf("%s not found in PATH, skipping", s.Sass)
	}
	s.Sass = path
}

// BuildBinary compiles cmd/stylepipe into a temporary directory
func (s *Suite) BuildBinary(ctx context.Context) error {
	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	binDir, err := os.MkdirTemp("", "stylepipe-e2e-bin-*")
	if err != nil {
		return fmt.Errorf("create bin dir: %w", err)
	}
	s.t.Cleanup(func() { _ = os.RemoveAll(binDir) })

	s.BinaryPath = filepath.Join(binDir, "stylepipe")
	s.Logf("Building %s", s.BinaryPath)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", s.BinaryPath, "./cmd/stylepipe")
	cmd.Dir = projectRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		s.Logf("build stdout: %s", stdout.String())
		s.Logf("build stderr: %s", stderr.String())
		return fmt.Errorf("go build: %w", err)
	}

	s.Logf("Binary built successfully")
	return nil
}

// CreateProject creates the project directory and its config file
func (s *Suite) CreateProject() error {
	dir, err := os.MkdirTemp("", "stylepipe-e2e-"+s.Name+"-*")
	if err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	s.ProjectDir = dir
	s.t.Cleanup(s.removeProject)

	config := fmt.Sprintf(`project: %s
paths:
  root: %q
compiler:
  command: %q
  timeout: 1m
watch:
  debounce: 50ms
`, s.Name, dir, s.Sass)

	return s.WriteFile(defaultConfigName, []byte(config))
}

func (s *Suite) removeProject() {
	if s.ProjectDir == "" {
		return
	}
	if s.KeepProject && s.t.Failed() {
		s.Logf("Test failed and E2E_KEEP_PROJECT=1, keeping project %s", s.ProjectDir)
		return
	}
	_ = os.RemoveAll(s.ProjectDir)
}

// ConfigPath returns the path of the project config
func (s *Suite) ConfigPath() string {
	return filepath.Join(s.ProjectDir, defaultConfigName)
}

// Path resolves rel inside the project directory
func (s *Suite) Path(rel string) string {
	return filepath.Join(s.ProjectDir, filepath.FromSlash(rel))
}

// WriteFile writes a file relative to the project directory
func (s *Suite) WriteFile(rel string, content []byte) error {
	path := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// ReadFile reads a file relative to the project directory
func (s *Suite) ReadFile(rel string) (string, error) {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Remove deletes a file relative to the project directory
func (s *Suite) Remove(rel string) error {
	return os.RemoveAll(s.Path(rel))
}

// Exists reports whether rel exists inside the project directory
func (s *Suite) Exists(rel string) bool {
	_, err := os.Stat(s.Path(rel))
	return err == nil
}

// ExecResult represents the result of a command execution
type ExecResult struct {
	Cmd      []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (s *Suite) command(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{"--config", s.ConfigPath()}, args...)
	cmd := exec.CommandContext(ctx, s.BinaryPath, full...)
	cmd.Dir = s.ProjectDir
	return cmd
}

// Exec runs stylepipe with args against the project
func (s *Suite) Exec(ctx context.Context, args ...string) (ExecResult, error) {
	if s.BinaryPath == "" {
		return ExecResult{}, fmt.Errorf("binary not built")
	}

	cmd := s.command(ctx, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("exec failed: %w", err)
		}
	}

	return ExecResult{
		Cmd:      args,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// MustExec runs stylepipe and fails on non-zero exit
func (s *Suite) MustExec(ctx context.Context, args ...string) (ExecResult, error) {
	res, err := s.Exec(ctx, args...)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("command failed with exit %d: %v\nstdout: %s\nstderr: %s",
			res.ExitCode, args, res.Stdout, res.Stderr)
	}
	return res, nil
}

// Process is a stylepipe invocation running in the background
type Process struct {
	cmd    *exec.Cmd
	stderr *syncBuffer
	done   chan struct{}
	err    error
}

// Start runs stylepipe with args in the background
func (s *Suite) Start(ctx context.Context, args ...string) (*Process, error) {
	if s.BinaryPath == "" {
		return nil, fmt.Errorf("binary not built")
	}

	cmd := s.command(ctx, args...)
	p := &Process{cmd: cmd, stderr: &syncBuffer{}, done: make(chan struct{})}
	cmd.Stdout = p.stderr
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Output returns everything the process has logged so far
func (p *Process) Output() string {
	return p.stderr.String()
}

// WaitForOutput polls the process output until it contains substr
func (p *Process) WaitForOutput(ctx context.Context, substr string, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if strings.Contains(p.Output(), substr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return fmt.Errorf("process exited before logging %q: %v", substr, p.err)
		case <-deadline:
			return fmt.Errorf("timeout waiting for %q", substr)
		case <-ticker.C:
		}
	}
}

// Stop interrupts the process and waits for it to exit
func (p *Process) Stop(timeout time.Duration) error {
	select {
	case <-p.done:
		return p.err
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("signal: %w", err)
	}

	select {
	case <-p.done:
		return p.err
	case <-time.After(timeout):
		_ = p.cmd.Process.Kill()
		<-p.done
		return fmt.Errorf("process did not exit within %s", timeout)
	}
}

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
