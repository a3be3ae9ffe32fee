package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory when
// no --config flag is given.
const DefaultFile = "stylepipe.yaml"

// SourceMapMode defines how source maps are emitted for unminified output
type SourceMapMode string

const (
	SourceMapInline SourceMapMode = "inline"
	SourceMapNone   SourceMapMode = "none"
)

// DefaultBrowsers is the prefixer target list used when none is configured.
var DefaultBrowsers = []string{
	"last 2 versions",
	"safari 5",
	"ie 8",
	"ie 9",
	"opera 12.1",
	"ios 6",
	"android 4",
}

// Config represents the complete stylepipe configuration
type Config struct {
	Project  string         `yaml:"project" toml:"project"`
	Paths    PathsConfig    `yaml:"paths" toml:"paths"`
	Sources  SourcesConfig  `yaml:"sources" toml:"sources"`
	Compiler CompilerConfig `yaml:"compiler" toml:"compiler"`
	Prefixer PrefixerConfig `yaml:"prefixer" toml:"prefixer"`
	Output   OutputConfig   `yaml:"output" toml:"output"`
	Watch    WatchConfig    `yaml:"watch" toml:"watch"`
}

// PathsConfig configures the project layout. Relative source and output
// directories are resolved against Root.
type PathsConfig struct {
	Root      string `yaml:"root" toml:"root"`
	SourceDir string `yaml:"source_dir" toml:"source_dir"`
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
}

// SourcesConfig configures which files are compiled and watched
type SourcesConfig struct {
	Pattern      string `yaml:"pattern" toml:"pattern"`
	WatchPattern string `yaml:"watch_pattern" toml:"watch_pattern"`
}

// CompilerConfig configures the external Sass compiler
type CompilerConfig struct {
	Command   string   `yaml:"command" toml:"command"`
	Args      []string `yaml:"args" toml:"args"`
	LoadPaths []string `yaml:"load_paths" toml:"load_paths"`
	Style     string   `yaml:"style" toml:"style"`
	Timeout   Duration `yaml:"timeout" toml:"timeout"`
}

// PrefixerConfig configures vendor prefixing
type PrefixerConfig struct {
	Browsers []string `yaml:"browsers" toml:"browsers"`
}

// OutputConfig configures output naming and source maps
type OutputConfig struct {
	MinSuffix  string        `yaml:"min_suffix" toml:"min_suffix"`
	SourceMaps SourceMapMode `yaml:"source_maps" toml:"source_maps"`
}

// WatchConfig configures the watch task
type WatchConfig struct {
	Debounce Duration `yaml:"debounce" toml:"debounce"`
}

// Duration is a time.Duration that decodes from strings like "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler (used by TOML).
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. The format is chosen by
// extension: .toml is parsed as TOML, anything else as YAML.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default when it
// does not. Any other read or parse error is returned.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	return nil, false, err
}

// expandEnv expands environment variables in all path-like fields
func (c *Config) expandEnv() {
	c.Paths.Root = os.ExpandEnv(c.Paths.Root)
	c.Paths.SourceDir = os.ExpandEnv(c.Paths.SourceDir)
	c.Paths.OutputDir = os.ExpandEnv(c.Paths.OutputDir)
	c.Compiler.Command = os.ExpandEnv(c.Compiler.Command)
	for i, p := range c.Compiler.LoadPaths {
		c.Compiler.LoadPaths[i] = os.ExpandEnv(p)
	}
}

// applyDefaults fills in zero-value fields with the original project layout.
func (c *Config) applyDefaults() {
	if c.Project == "" {
		c.Project = "wawf"
	}
	if c.Paths.Root == "" {
		c.Paths.Root = "."
	}
	if c.Paths.SourceDir == "" {
		c.Paths.SourceDir = "_sass"
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = "css"
	}
	if c.Sources.Pattern == "" {
		c.Sources.Pattern = "*.scss"
	}
	if c.Sources.WatchPattern == "" {
		c.Sources.WatchPattern = "**/*.scss"
	}
	if c.Compiler.Command == "" {
		c.Compiler.Command = "sass"
	}
	if c.Compiler.Style == "" {
		c.Compiler.Style = "expanded"
	}
	if len(c.Prefixer.Browsers) == 0 {
		c.Prefixer.Browsers = append([]string(nil), DefaultBrowsers...)
	}
	if c.Output.MinSuffix == "" {
		c.Output.MinSuffix = ".min"
	}
	if c.Output.SourceMaps == "" {
		c.Output.SourceMaps = SourceMapInline
	}
	if c.Watch.Debounce.Duration == 0 {
		c.Watch.Debounce.Duration = 100 * time.Millisecond
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Paths.SourceDir == "" {
		return fmt.Errorf("paths.source_dir is required")
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir is required")
	}
	if filepath.Clean(c.SourceDir()) == filepath.Clean(c.OutputDir()) {
		return fmt.Errorf("paths.output_dir must differ from paths.source_dir: %s", c.OutputDir())
	}

	if _, err := glob.Compile(c.Sources.Pattern, '/'); err != nil {
		return fmt.Errorf("invalid sources.pattern %q: %w", c.Sources.Pattern, err)
	}
	if strings.Contains(c.Sources.Pattern, "/") {
		return fmt.Errorf("sources.pattern must match file names only: %s", c.Sources.Pattern)
	}
	if _, err := glob.Compile(c.Sources.WatchPattern, '/'); err != nil {
		return fmt.Errorf("invalid sources.watch_pattern %q: %w", c.Sources.WatchPattern, err)
	}

	if c.Compiler.Command == "" {
		return fmt.Errorf("compiler.command is required")
	}
	switch c.Compiler.Style {
	case "expanded":
		// valid
	case "compressed":
		return fmt.Errorf("compiler.style compressed is not supported: vendor prefixing needs expanded output, the %s copy is already minified", c.Output.MinSuffix)
	default:
		return fmt.Errorf("invalid compiler.style: %s (must be expanded)", c.Compiler.Style)
	}
	if c.Compiler.Timeout.Duration < 0 {
		return fmt.Errorf("compiler.timeout must not be negative")
	}

	if len(c.Prefixer.Browsers) == 0 {
		return fmt.Errorf("prefixer.browsers must not be empty")
	}

	if !strings.HasPrefix(c.Output.MinSuffix, ".") || len(c.Output.MinSuffix) < 2 {
		return fmt.Errorf("output.min_suffix must start with a dot: %q", c.Output.MinSuffix)
	}
	switch c.Output.SourceMaps {
	case SourceMapInline, SourceMapNone:
		// valid
	default:
		return fmt.Errorf("invalid output.source_maps: %s (must be inline or none)", c.Output.SourceMaps)
	}

	if c.Watch.Debounce.Duration < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}

	return nil
}

// SourceDir returns the directory containing style sources
func (c *Config) SourceDir() string {
	return c.resolve(c.Paths.SourceDir)
}

// OutputDir returns the directory compiled styles are written to
func (c *Config) OutputDir() string {
	return c.resolve(c.Paths.OutputDir)
}

// LoadPaths returns the compiler include paths, the source directory first
func (c *Config) LoadPaths() []string {
	paths := []string{c.SourceDir()}
	for _, p := range c.Compiler.LoadPaths {
		paths = append(paths, c.resolve(p))
	}
	return paths
}

// SourceMapsEnabled reports whether unminified output carries a source map
func (c *Config) SourceMapsEnabled() bool {
	return c.Output.SourceMaps == SourceMapInline
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Paths.Root, p)
}
