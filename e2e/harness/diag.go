//go:build e2e

package harness

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Diagnostics represents collected diagnostic information
type Diagnostics struct {
	CollectedAt time.Time
	Items       []DiagItem
}

// DiagItem represents a single diagnostic command output
type DiagItem struct {
	Name     string
	Cmd      []string
	ExitCode int
	Output   string
}

// CollectDiagnostics gathers information about the project and toolchain
func (s *Suite) CollectDiagnostics(ctx context.Context) (*Diagnostics, error) {
	diag := &Diagnostics{
		CollectedAt: time.Now(),
		Items:       []DiagItem{},
	}

	commands := []struct {
		name string
		cmd  []string
	}{
		{"sass-version", []string{s.Sass, "--version"}},
		{"stylepipe-version", []string{s.BinaryPath, "version"}},
	}

	for _, item := range commands {
		out, exitCode := run(ctx, item.cmd...)
		diag.Items = append(diag.Items, DiagItem{
			Name:     item.name,
			Cmd:      item.cmd,
			ExitCode: exitCode,
			Output:   out,
		})
	}

	config, err := os.ReadFile(s.ConfigPath())
	diag.Items = append(diag.Items, DiagItem{
		Name:     "config",
		Cmd:      []string{"cat", s.ConfigPath()},
		ExitCode: exitCodeOf(err),
		Output:   string(config),
	})

	tree, err := s.listProject()
	diag.Items = append(diag.Items, DiagItem{
		Name:     "project-tree",
		Cmd:      []string{"find", s.ProjectDir},
		ExitCode: exitCodeOf(err),
		Output:   tree,
	})

	return diag, nil
}

// listProject lists every file below the project directory with its size
func (s *Suite) listProject() (string, error) {
	var b strings.Builder
	err := filepath.WalkDir(s.ProjectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(s.ProjectDir, path)
		if d.IsDir() {
			b.WriteString(rel + "/\n")
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		b.WriteString(rel + " " + info.ModTime().Format(time.RFC3339Nano) + " " + strconv.FormatInt(info.Size(), 10) + "\n")
		return nil
	})
	return b.String(), err
}

func run(ctx context.Context, args ...string) (string, int) {
	if len(args) == 0 || args[0] == "" {
		return "", -1
	}
	output, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	return string(output), exitCodeOf(err)
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// DumpDiagnostics collects and logs diagnostic information
func (s *Suite) DumpDiagnostics(ctx context.Context) {
	s.Logf("=== Collecting diagnostics ===")

	diag, err := s.CollectDiagnostics(ctx)
	if err != nil {
		s.Logf("Failed to collect diagnostics: %v", err)
		return
	}

	for _, item := range diag.Items {
		s.Logf("--- %s (exit %d) ---", item.Name, item.ExitCode)
		s.Logf("Command: %s", strings.Join(item.Cmd, " "))
		if item.Output != "" {
			s.Logf("%s", item.Output)
		} else {
			s.Logf("(no output)")
		}
	}

	s.Logf("=== End diagnostics ===")
}

// RunScenario runs a test scenario and collects diagnostics on failure
func (s *Suite) RunScenario(ctx context.Context, name string, fn func(context.Context) error) error {
	s.Logf("Running scenario: %s", name)
	err := fn(ctx)
	if err != nil {
		s.Logf("Scenario %s failed: %v", name, err)
		s.DumpDiagnostics(ctx)
	} else {
		s.Logf("Scenario %s passed", name)
	}
	return err
}
