package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/schaermu/stylepipe/internal/compiler"
	"github.com/schaermu/stylepipe/internal/sourcemap"
)

var _ compiler.Compiler = (*FakeCompiler)(nil)

func TestFakeCompiler(t *testing.T) {
	ctx := context.Background()
	c := &FakeCompiler{}

	out, err := c.Compile(ctx, compiler.Source{Path: "a.scss", Contents: []byte("a { b: c; }\n")})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if string(out.CSS) != "a { b: c; }\n" {
		t.Errorf("expected passthrough, got %q", out.CSS)
	}

	out, err = c.Compile(ctx, compiler.Source{Path: "bad.scss", Contents: []byte("a {\n")})
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if len(out.CSS) != 0 {
		t.Errorf("expected no output without Partial, got %q", out.CSS)
	}

	if got := c.Calls(); len(got) != 2 || got[1] != "bad.scss" {
		t.Errorf("Calls() = %v", got)
	}
}

func TestFakeCompiler_PartialAndMap(t *testing.T) {
	ctx := context.Background()

	c := &FakeCompiler{Partial: true}
	out, err := c.Compile(ctx, compiler.Source{Path: "bad.scss", Contents: []byte("@error 'x';")})
	if err == nil || string(out.CSS) != "@error 'x';" {
		t.Errorf("expected partial output with error, got %q, %v", out.CSS, err)
	}

	c = &FakeCompiler{EmbedMap: true}
	out, err = c.Compile(ctx, compiler.Source{Path: "a.scss", Contents: []byte("a {}\n")})
	if err != nil {
		t.Fatal(err)
	}
	body, m, err := sourcemap.Extract(out.CSS)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Sources[0] != "-" {
		t.Fatalf("expected embedded map with stdin source, got %+v", m)
	}
	if !strings.HasPrefix(string(body), "a {}") {
		t.Errorf("unexpected body %q", body)
	}
}

func TestWriteTree(t *testing.T) {
	fsys := afero.NewMemMapFs()
	WriteTree(t, fsys, "/p", map[string]string{
		"_sass/a.scss":         "a",
		"_sass/nested/_b.scss": "b",
	})

	if got := ReadFile(t, fsys, "/p/_sass/nested/_b.scss"); got != "b" {
		t.Errorf("ReadFile() = %q", got)
	}
}
