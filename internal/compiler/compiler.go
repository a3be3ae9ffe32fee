// Package compiler runs the external Sass compiler.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrNotInstalled is returned by Available when the compiler executable
// cannot be found.
var ErrNotInstalled = errors.New("compiler not installed")

// Source is a single stylesheet to compile
type Source struct {
	// Path is the absolute path of the source file, used for messages.
	Path string
	// Contents is fed to the compiler on stdin.
	Contents []byte
	// LoadPaths are searched for @import and @use targets.
	LoadPaths []string
}

// Output is what the compiler produced. CSS may be partial when Compile
// returns an error.
type Output struct {
	CSS    []byte
	Stderr string
}

// Compiler turns Sass sources into CSS
type Compiler interface {
	// Compile compiles a single source. The returned Output is non-nil even
	// on failure and carries whatever the compiler wrote.
	Compile(ctx context.Context, src Source) (*Output, error)
	// Available reports whether the compiler can be run at all
	Available(ctx context.Context) error
}

// ShellCompiler implements Compiler by shelling out to a sass executable
type ShellCompiler struct {
	command string
	args    []string
	style   string
	timeout time.Duration
}

// NewShellCompiler creates a compiler that runs command with the given
// extra arguments. A zero timeout means no limit.
func NewShellCompiler(command string, args []string, style string, timeout time.Duration) *ShellCompiler {
	return &ShellCompiler{
		command: command,
		args:    append([]string(nil), args...),
		style:   style,
		timeout: timeout,
	}
}

// Available checks that the compiler executable is on PATH
func (c *ShellCompiler) Available(ctx context.Context) error {
	if _, err := exec.LookPath(c.command); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotInstalled, c.command, err)
	}
	return nil
}

// Compile runs the compiler with the source on stdin and an embedded
// source map in the output.
func (c *ShellCompiler) Compile(ctx context.Context, src Source) (*Output, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.command, c.buildArgs(src)...)
	cmd.Stdin = bytes.NewReader(src.Contents)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &Output{CSS: stdout.Bytes(), Stderr: strings.TrimSpace(stderr.String())}
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: compile aborted: %w", src.Path, ctx.Err())
		}
		if out.Stderr != "" {
			return out, fmt.Errorf("%s: %w: %s", src.Path, err, out.Stderr)
		}
		return out, fmt.Errorf("%s: %w", src.Path, err)
	}

	return out, nil
}

// buildArgs assembles the command line for a single compile
func (c *ShellCompiler) buildArgs(src Source) []string {
	args := append([]string(nil), c.args...)
	args = append(args,
		"--stdin",
		"--style="+c.style,
		"--embed-source-map",
		"--embed-sources",
	)
	for _, p := range src.LoadPaths {
		args = append(args, "--load-path="+p)
	}
	return args
}
