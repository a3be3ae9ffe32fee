// Package build compiles style sources into published stylesheets.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dchest/cssmin"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/schaermu/stylepipe/internal/compiler"
	"github.com/schaermu/stylepipe/internal/config"
	"github.com/schaermu/stylepipe/internal/prefixer"
	"github.com/schaermu/stylepipe/internal/source"
	"github.com/schaermu/stylepipe/internal/sourcemap"
)

// Engine orchestrates the styles and clean tasks
type Engine struct {
	cfg      *config.Config
	compiler compiler.Compiler
	fs       afero.Fs
	prefixer *prefixer.Prefixer
	logger   *slog.Logger
	dryRun   bool

	// mu serializes runs so that clean never interleaves with a compile.
	mu sync.Mutex
}

// NewEngine creates a new build engine
func NewEngine(cfg *config.Config, comp compiler.Compiler, fsys afero.Fs, logger *slog.Logger, dryRun bool) (*Engine, error) {
	p, err := prefixer.New(cfg.Prefixer.Browsers)
	if err != nil {
		return nil, fmt.Errorf("failed to configure prefixer: %w", err)
	}
	logger.Debug("prefixer configured", "targets", len(p.Targets()))

	return &Engine{
		cfg:      cfg,
		compiler: comp,
		fs:       fsys,
		prefixer: p,
		logger:   logger,
		dryRun:   dryRun,
	}, nil
}

// Run executes the styles pipeline once over every source file. Compile
// errors are collected in the result; write errors abort the run.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := e.logger.With("run", uuid.NewString())
	logger.Info("starting styles",
		"source_dir", e.cfg.SourceDir(),
		"output_dir", e.cfg.OutputDir(),
		"dry_run", e.dryRun)

	if err := e.compiler.Available(ctx); err != nil {
		return nil, fmt.Errorf("compiler not available: %w", err)
	}

	sources, err := source.Discover(e.fs, e.cfg.SourceDir(), e.cfg.Sources.Pattern)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to discover sources: %w", err)
		}
		logger.Warn("source directory does not exist", "dir", e.cfg.SourceDir())
	}
	logger.Info("discovered sources", "count", len(sources))

	result := &Result{}
	for _, path := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		f, err := e.compile(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			logger.Error("compile failed", "source", path, "error", err)
			result.Errors = append(result.Errors, &Error{Kind: CompileError, Path: path, Err: err})
			if f == nil {
				continue
			}
			logger.Warn("continuing with partial compiler output", "source", path)
		}

		e.initMap(logger, f)
		e.prefix(logger, f)

		written, err := e.publish(logger, f)
		result.Outputs = append(result.Outputs, written...)
		if err != nil {
			return result, err
		}
	}

	if e.dryRun {
		logger.Info("dry-run complete, no files written")
	}
	logger.Info("styles completed",
		"outputs", len(result.Outputs),
		"errors", len(result.Errors))
	return result, nil
}

// Clean removes the output directory and everything in it. A missing
// directory is not an error.
func (e *Engine) Clean(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	dir := e.cfg.OutputDir()
	if e.dryRun {
		e.logger.Info("[dry-run] would delete output directory", "dir", dir)
		return nil
	}

	if err := e.fs.RemoveAll(dir); err != nil {
		return &Error{Kind: DeleteError, Path: dir, Err: err}
	}

	e.logger.Info("output directory deleted", "dir", dir)
	return nil
}

// compile reads and compiles a single source. On failure the returned file
// is non-nil only when the compiler produced partial output.
func (e *Engine) compile(ctx context.Context, path string) (*File, error) {
	contents, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	out, err := e.compiler.Compile(ctx, compiler.Source{
		Path:      path,
		Contents:  contents,
		LoadPaths: e.cfg.LoadPaths(),
	})
	if out == nil && err == nil {
		err = fmt.Errorf("compiler returned no output")
	}
	if out == nil || (err != nil && len(out.CSS) == 0) {
		return nil, err
	}
	if out.Stderr != "" && err == nil {
		e.logger.Debug("compiler output", "source", path, "stderr", out.Stderr)
	}

	return &File{
		Source:   path,
		Path:     source.OutputName(path),
		Contents: out.CSS,
	}, err
}

// initMap strips the source map embedded by the compiler and, when maps are
// enabled, loads it or starts an identity map over the source.
func (e *Engine) initMap(logger *slog.Logger, f *File) {
	body, m, err := sourcemap.Extract(f.Contents)
	f.Contents = body
	if !e.cfg.SourceMapsEnabled() {
		return
	}
	if err != nil {
		logger.Warn("ignoring unreadable embedded source map", "source", f.Source, "error", err)
	}

	if m == nil {
		src, err := afero.ReadFile(e.fs, f.Source)
		if err != nil {
			logger.Warn("source unreadable, source map has no sources content", "source", f.Source, "error", err)
		}
		m = sourcemap.Identity(f.Path, e.relSource(f.Source, ""), src, bytes.Count(body, []byte("\n"))+1)
	} else {
		m.MapSources(func(s string) string { return e.relSource(f.Source, s) })
	}
	m.File = f.Path
	f.Map = m
}

// prefix adds vendor prefixes and keeps the map aligned with the new lines
func (e *Engine) prefix(logger *slog.Logger, f *File) {
	out, origin := e.prefixer.Process(f.Contents)
	f.Contents = out

	if f.Map == nil {
		return
	}
	if err := f.Map.RemapLines(origin); err != nil {
		logger.Warn("dropping source map with invalid mappings", "source", f.Source, "error", err)
		f.Map = nil
	}
}

// publish writes the unminified file with its inline map, then the
// renamed and minified copy. It returns the paths written.
func (e *Engine) publish(logger *slog.Logger, f *File) ([]string, error) {
	outDir := e.cfg.OutputDir()
	dst := filepath.Join(outDir, f.Path)

	contents := f.Contents
	if f.Map != nil {
		inlined, err := f.Map.Inline(contents)
		if err != nil {
			return nil, &Error{Kind: WriteError, Path: dst, Err: err}
		}
		contents = inlined
	}

	minName := source.WithSuffix(f.Path, e.cfg.Output.MinSuffix)
	minDst := filepath.Join(outDir, minName)
	minified := cssmin.Minify(contents)

	if e.dryRun {
		logger.Info("[dry-run] would write", "dest", dst, "bytes", len(contents))
		logger.Info("[dry-run] would write", "dest", minDst, "bytes", len(minified))
		return nil, nil
	}

	var written []string
	if err := e.writeFile(dst, contents); err != nil {
		return written, &Error{Kind: WriteError, Path: dst, Err: err}
	}
	logger.Info("wrote stylesheet", "dest", dst, "bytes", len(contents))
	written = append(written, dst)

	if err := e.writeFile(minDst, minified); err != nil {
		return written, &Error{Kind: WriteError, Path: minDst, Err: err}
	}
	logger.Info("wrote stylesheet", "dest", minDst, "bytes", len(minified))
	written = append(written, minDst)

	return written, nil
}

// relSource rewrites a source reference from a compiler map into a path
// relative to the output directory. An empty or stdin reference stands for
// the file being compiled.
func (e *Engine) relSource(sourcePath, ref string) string {
	var abs string
	switch {
	case ref == "" || ref == "-" || ref == "stdin":
		abs = sourcePath
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		abs = filepath.FromSlash(u.Path)
	case strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:"):
		return ref
	case filepath.IsAbs(ref):
		abs = ref
	default:
		abs = filepath.Join(filepath.Dir(sourcePath), filepath.FromSlash(ref))
	}

	rel, err := source.RelativePath(e.cfg.OutputDir(), abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// writeFile writes data to dst via a temp file and rename
func (e *Engine) writeFile(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmpFile, err := afero.TempFile(e.fs, dir, ".stylepipe-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = e.fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := e.fs.Chmod(tmpPath, 0644); err != nil {
		return err
	}

	return e.fs.Rename(tmpPath, dst)
}
