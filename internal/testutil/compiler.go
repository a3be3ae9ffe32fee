package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/schaermu/stylepipe/internal/compiler"
	"github.com/schaermu/stylepipe/internal/sourcemap"
)

// FakeCompiler implements compiler.Compiler without running sass. Sources
// are passed through unchanged, so test fixtures should be plain CSS.
//
// A source containing "@error" or unbalanced braces fails to compile. With
// Partial set, failing sources still return their contents as output.
type FakeCompiler struct {
	AvailableErr error
	// EmbedMap appends an inline identity map whose only source is "-",
	// the way sass reports stdin input.
	EmbedMap bool
	Partial  bool

	mu    sync.Mutex
	calls []string
}

// Available returns AvailableErr
func (c *FakeCompiler) Available(_ context.Context) error {
	return c.AvailableErr
}

// Compile passes src.Contents through as CSS
func (c *FakeCompiler) Compile(ctx context.Context, src compiler.Source) (*compiler.Output, error) {
	c.mu.Lock()
	c.calls = append(c.calls, src.Path)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := string(src.Contents)
	if msg := syntaxError(text); msg != "" {
		out := &compiler.Output{Stderr: "Error: " + msg}
		if c.Partial {
			out.CSS = []byte(text)
		}
		return out, fmt.Errorf("%s: exit status 65: %s", src.Path, out.Stderr)
	}

	css := []byte(text)
	if c.EmbedMap {
		lines := strings.Count(text, "\n") + 1
		m := sourcemap.Identity("", "-", src.Contents, lines)
		inlined, err := m.Inline(css)
		if err != nil {
			return nil, err
		}
		css = inlined
	}

	return &compiler.Output{CSS: css}, nil
}

// Calls returns the source paths compiled so far, in call order
func (c *FakeCompiler) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func syntaxError(text string) string {
	if strings.Contains(text, "@error") {
		return "@error directive"
	}
	if strings.Count(text, "{") != strings.Count(text, "}") {
		return `expected "}".`
	}
	return ""
}
