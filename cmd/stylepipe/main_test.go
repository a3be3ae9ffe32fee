package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/schaermu/stylepipe/internal/tasks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// resetGlobals restores the flag variables after a test.
func resetGlobals(t *testing.T) {
	t.Helper()
	origCfgFile, origRoot, origLevel := cfgFile, rootDir, logLevel
	origDryRun, origStrict := dryRun, strict
	t.Cleanup(func() {
		cfgFile, rootDir, logLevel = origCfgFile, origRoot, origLevel
		dryRun, strict = origDryRun, origStrict
	})
	logLevel = "error"
}

// writeProject creates a project with a fake sass executable that copies
// stdin to stdout. It returns the project directory and the config path.
func writeProject(t *testing.T, sources map[string]string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}

	dir := t.TempDir()
	sassPath := filepath.Join(dir, "fake-sass")
	if err := os.WriteFile(sassPath, []byte("#!/bin/sh\nexec cat\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	for name, content := range sources {
		path := filepath.Join(dir, "_sass", name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	configContent := []byte(`project: test
paths:
  root: "` + dir + `"
compiler:
  command: "` + sassPath + `"
`)
	cfgPath := filepath.Join(dir, "stylepipe.yaml")
	if err := os.WriteFile(cfgPath, configContent, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return dir, cfgPath
}

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	resetGlobals(t)

	tmpDir := t.TempDir()
	configContent := []byte(`project: site
paths:
  root: "` + tmpDir + `"
  source_dir: styles
  output_dir: public/css
prefixer:
  browsers: ["last 1 versions"]
`)
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, configContent, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfgFile = cfgPath
	cfg, err := loadConfig(testLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Project != "site" {
		t.Errorf("Project = %q", cfg.Project)
	}
	if cfg.OutputDir() != filepath.Join(tmpDir, "public", "css") {
		t.Errorf("OutputDir() = %q", cfg.OutputDir())
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	resetGlobals(t)

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")

	_, err := loadConfig(testLogger())
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_DefaultPath(t *testing.T) {
	resetGlobals(t)
	cfgFile = ""

	// No stylepipe.yaml next to this test, so built-in defaults apply.
	cfg, err := loadConfig(testLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Project != "wawf" || cfg.Paths.SourceDir != "_sass" || cfg.Paths.OutputDir != "css" {
		t.Errorf("expected default layout, got %+v", cfg.Paths)
	}
}

func TestLoadConfig_RootOverride(t *testing.T) {
	resetGlobals(t)
	cfgFile = ""
	rootDir = "/srv/site"

	cfg, err := loadConfig(testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SourceDir() != filepath.Join("/srv/site", "_sass") {
		t.Errorf("SourceDir() = %q", cfg.SourceDir())
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Helper()
	// versionCmd.Run simply prints version info; should not panic.
	versionCmd.Run(versionCmd, []string{})
}

func TestListTasks(t *testing.T) {
	resetGlobals(t)
	cfgFile = ""
	rootDir = t.TempDir()

	var out bytes.Buffer
	tasksCmd.SetOut(&out)
	t.Cleanup(func() { tasksCmd.SetOut(nil) })

	if err := listTasks(tasksCmd, nil); err != nil {
		t.Fatalf("listTasks returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 tasks, got:\n%s", out.String())
	}
	for i, name := range []string{tasks.Clean, tasks.Default, tasks.Styles, tasks.Watch} {
		if !strings.HasPrefix(lines[i], name) {
			t.Errorf("line %d = %q, want task %s", i, lines[i], name)
		}
	}
	if !strings.Contains(lines[1], "(runs styles)") {
		t.Errorf("default should list its dependency: %q", lines[1])
	}
}

func TestRunTask_StylesThenClean(t *testing.T) {
	resetGlobals(t)
	dir, cfgPath := writeProject(t, map[string]string{
		"main.scss":  "a {\n  transform: none;\n}\n",
		"_vars.scss": "$x: 1;\n",
	})
	cfgFile = cfgPath

	if err := runTask(tasks.Styles)(stylesCmd, nil); err != nil {
		t.Fatalf("styles failed: %v", err)
	}

	css, err := os.ReadFile(filepath.Join(dir, "css", "main.css"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(css), "-webkit-transform: none;") {
		t.Errorf("expected prefixed output, got:\n%s", css)
	}
	if _, err := os.Stat(filepath.Join(dir, "css", "main.min.css")); err != nil {
		t.Errorf("expected minified output: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "css", "_vars.css")); !os.IsNotExist(err) {
		t.Error("partials must not be compiled")
	}

	if err := runTask(tasks.Clean)(cleanCmd, nil); err != nil {
		t.Fatalf("clean failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "css")); !os.IsNotExist(err) {
		t.Error("expected output directory to be removed")
	}
}

func TestRunTask_DefaultStrict(t *testing.T) {
	resetGlobals(t)
	_, cfgPath := writeProject(t, map[string]string{"a.scss": "a { color: red; }\n"})
	cfgFile = cfgPath

	if err := runTask(tasks.Default)(rootCmd, nil); err != nil {
		t.Fatalf("default failed: %v", err)
	}

	strict = true
	if err := runTask(tasks.Default)(rootCmd, nil); err != nil {
		t.Errorf("strict run without compile errors should succeed: %v", err)
	}
}

func TestRunTask_CompilerMissing(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "stylepipe.yaml")
	content := "paths:\n  root: \"" + dir + "\"\ncompiler:\n  command: stylepipe-no-such-sass\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgFile = cfgPath

	err := runTask(tasks.Styles)(stylesCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "compiler not available") {
		t.Errorf("expected compiler not available error, got %v", err)
	}
}

func TestRootCmd_AcceptsStylesFlags(t *testing.T) {
	resetGlobals(t)
	dir, cfgPath := writeProject(t, map[string]string{"a.scss": "a { color: red; }\n"})

	rootCmd.SetArgs([]string{"--config", cfgPath, "--log-level", "error", "--strict", "--dry-run"})
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("stylepipe --strict --dry-run failed: %v", err)
	}
	if !strict || !dryRun {
		t.Errorf("flags not applied: strict=%v dryRun=%v", strict, dryRun)
	}
	if _, err := os.Stat(filepath.Join(dir, "css")); !os.IsNotExist(err) {
		t.Error("dry-run default task must not write output")
	}
}
