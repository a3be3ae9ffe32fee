// Package source discovers style-source files and derives output names.
package source

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"
)

// Matcher matches slash-separated relative paths against a glob. A "**/"
// segment also matches zero directories, so "**/*.scss" matches "a.scss".
type Matcher struct {
	pattern string
	globs   []glob.Glob
}

// NewMatcher compiles pattern into a Matcher
func NewMatcher(pattern string) (*Matcher, error) {
	variants := []string{pattern}
	if strings.Contains(pattern, "**/") {
		variants = append(variants, strings.ReplaceAll(pattern, "**/", ""))
	}

	m := &Matcher{pattern: pattern}
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether the relative path matches
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// String returns the original pattern
func (m *Matcher) String() string {
	return m.pattern
}

// IsPartial returns true for Sass partials ("_name.scss"), which are only
// ever imported and never compiled on their own.
func IsPartial(p string) bool {
	return strings.HasPrefix(filepath.Base(p), "_")
}

// Discover finds the files directly inside dir whose base name matches
// pattern. Subdirectories are not descended into, partials and hidden files
// are skipped, and the result is sorted.
func Discover(fs afero.Fs, dir, pattern string) ([]string, error) {
	m, err := NewMatcher(pattern)
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, info := range entries {
		name := info.Name()

		// Skip directories
		if info.IsDir() {
			continue
		}

		if strings.HasPrefix(name, ".") || IsPartial(name) {
			continue
		}

		if m.Match(name) {
			files = append(files, filepath.Join(dir, name))
		}
	}

	sort.Strings(files)
	return files, nil
}

// OutputName converts a source file name to its compiled name.
// For example: _sass/main.scss -> main.css
func OutputName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".css"
}

// WithSuffix inserts suffix immediately before the extension of name.
// For example: main.css with ".min" -> main.min.css
func WithSuffix(name, suffix string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + suffix + ext
}

// RelativePath returns the relative path from baseDir to target
func RelativePath(baseDir, target string) (string, error) {
	return filepath.Rel(baseDir, target)
}
