//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/stylepipe/e2e/harness"
)

const (
	mainSource = `@use "vars";

.card {
  display: flex;
  color: vars.$accent;

  &:hover {
    transform: scale(1.1);
  }
}
`
	varsSource   = "$accent: #c0ffee;\n"
	brokenSource = ".broken {\n  color: red;\n"
)

func TestStyles(t *testing.T) {
	suite := harness.NewSuite("styles", t)
	suite.RequireSass()

	ctx, cancel := context.WithTimeout(context.Background(), suite.Timeout)
	defer cancel()

	if err := suite.BuildBinary(ctx); err != nil {
		t.Fatalf("build binary: %v", err)
	}
	if err := suite.CreateProject(); err != nil {
		t.Fatalf("create project: %v", err)
	}

	provisionProject(t, suite)

	t.Run("A_StylesWritesBothOutputs", func(t *testing.T) {
		if err := suite.RunScenario(ctx, "styles writes both outputs", func(ctx context.Context) error {
			return testStylesWritesBothOutputs(ctx, suite)
		}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("B_CompileErrorSkipsSource", func(t *testing.T) {
		if err := suite.RunScenario(ctx, "compile error skips source", func(ctx context.Context) error {
			return testCompileErrorSkipsSource(ctx, suite)
		}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("C_WatchRebuildsOnChange", func(t *testing.T) {
		if err := suite.RunScenario(ctx, "watch rebuilds on change", func(ctx context.Context) error {
			return testWatchRebuildsOnChange(ctx, suite)
		}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("D_CleanRemovesOutput", func(t *testing.T) {
		if err := suite.RunScenario(ctx, "clean removes output", func(ctx context.Context) error {
			return testCleanRemovesOutput(ctx, suite)
		}); err != nil {
			t.Fatal(err)
		}
	})
}

// provisionProject writes the initial sources
func provisionProject(t *testing.T, s *harness.Suite) {
	t.Helper()
	s.Logf("Provisioning project at %s", s.ProjectDir)

	files := map[string]string{
		"_sass/main.scss":  mainSource,
		"_sass/_vars.scss": varsSource,
	}
	for rel, content := range files {
		if err := s.WriteFile(rel, []byte(content)); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func testStylesWritesBothOutputs(ctx context.Context, s *harness.Suite) error {
	if _, err := s.MustExec(ctx, "styles"); err != nil {
		return err
	}

	css, err := s.ReadFile("css/main.css")
	if err != nil {
		return fmt.Errorf("read main.css: %w", err)
	}
	for _, want := range []string{
		"color: #c0ffee",
		"-webkit-transform: scale(1.1)",
		"/*# sourceMappingURL=data:application/json;",
	} {
		if !strings.Contains(css, want) {
			return fmt.Errorf("main.css missing %q:\n%s", want, css)
		}
	}

	minified, err := s.ReadFile("css/main.min.css")
	if err != nil {
		return fmt.Errorf("read main.min.css: %w", err)
	}
	if strings.Contains(minified, "sourceMappingURL") || strings.Contains(minified, "\n  ") {
		return fmt.Errorf("main.min.css is not minified:\n%s", minified)
	}
	if len(minified) >= len(css) {
		return fmt.Errorf("main.min.css (%d bytes) not smaller than main.css (%d bytes)", len(minified), len(css))
	}

	if s.Exists("css/_vars.css") {
		return fmt.Errorf("partial _vars.scss was compiled")
	}
	return nil
}

func testCompileErrorSkipsSource(ctx context.Context, s *harness.Suite) error {
	if err := s.WriteFile("_sass/broken.scss", []byte(brokenSource)); err != nil {
		return err
	}
	defer func() { _ = s.Remove("_sass/broken.scss") }()

	res, err := s.Exec(ctx, "styles")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("styles without --strict exited %d:\n%s", res.ExitCode, res.Stderr)
	}
	if !strings.Contains(res.Stderr, "compile failed") {
		return fmt.Errorf("expected compile failure in log:\n%s", res.Stderr)
	}
	if !s.Exists("css/main.css") {
		return fmt.Errorf("main.css missing after sibling failure")
	}

	res, err = s.Exec(ctx, "styles", "--strict")
	if err != nil {
		return err
	}
	if res.ExitCode == 0 {
		return fmt.Errorf("styles --strict succeeded despite compile error")
	}
	return nil
}

func testWatchRebuildsOnChange(ctx context.Context, s *harness.Suite) error {
	p, err := s.Start(ctx, "watch")
	if err != nil {
		return err
	}
	defer func() { _ = p.Stop(10 * time.Second) }()

	if err := p.WaitForOutput(ctx, "watching for changes", 30*time.Second); err != nil {
		return err
	}

	if err := s.WriteFile("_sass/_vars.scss", []byte("$accent: #bada55;\n")); err != nil {
		return err
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		css, err := s.ReadFile("css/main.css")
		if err == nil && strings.Contains(css, "#bada55") {
			s.Logf("watch output:\n%s", p.Output())
			return p.Stop(10 * time.Second)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("main.css was not rebuilt after editing a partial:\n%s", p.Output())
}

func testCleanRemovesOutput(ctx context.Context, s *harness.Suite) error {
	if _, err := s.MustExec(ctx, "clean"); err != nil {
		return err
	}
	if s.Exists("css") {
		return fmt.Errorf("output directory still exists after clean")
	}

	// A second clean on the absent directory succeeds.
	if _, err := s.MustExec(ctx, "clean"); err != nil {
		return err
	}

	// The default task rebuilds from scratch.
	if _, err := s.MustExec(ctx); err != nil {
		return err
	}
	if !s.Exists("css/main.css") || !s.Exists("css/main.min.css") {
		return fmt.Errorf("default task did not rebuild outputs")
	}
	return nil
}
