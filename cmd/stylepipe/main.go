package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/schaermu/stylepipe/internal/build"
	"github.com/schaermu/stylepipe/internal/compiler"
	"github.com/schaermu/stylepipe/internal/config"
	"github.com/schaermu/stylepipe/internal/tasks"
	"github.com/schaermu/stylepipe/internal/watch"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	rootDir   string
	logLevel  string
	logFormat string
	dryRun    bool
	strict    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stylepipe",
	Short: "Compile, prefix and minify Sass stylesheets",
	Long: `stylepipe builds the stylesheets of a site: every Sass source in the source
directory is compiled with the sass executable, vendor-prefixed for the
configured browsers and written to the output directory together with a
minified copy.

Run without a subcommand to execute the default task (styles).`,
	SilenceUsage: true,
	RunE:         runTask(tasks.Default),
}

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "Compile all stylesheets once",
	Long: `Styles compiles every top-level source file, adds vendor prefixes and an
inline source map, and writes <name>.css and <name>.min.css to the output
directory.

A source that fails to compile is logged and skipped; use --strict to turn
such failures into a non-zero exit status.`,
	RunE: runTask(tasks.Styles),
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete the output directory",
	RunE:  runTask(tasks.Clean),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild stylesheets whenever a source changes",
	Long: `Watch observes the source directory recursively and re-runs styles after
any matching file is created, changed or removed. It runs until interrupted.`,
	RunE: runTask(tasks.Watch),
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the available tasks",
	RunE:  listTasks,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stylepipe %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root, overrides paths.root")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "compile but only log what would be written")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "fail when any source fails to compile")
	stylesCmd.Flags().BoolVar(&dryRun, "dry-run", false, "compile but only log what would be written")
	stylesCmd.Flags().BoolVar(&strict, "strict", false, "fail when any source fails to compile")
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "only log what would be deleted")

	// Add commands
	rootCmd.AddCommand(stylesCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(versionCmd)
}

// runTask returns a cobra handler that runs the named task to completion
func runTask(name string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		// Setup logger
		logger := setupLogger()

		// Load configuration
		cfg, err := loadConfig(logger)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		runner, _, err := newRunner(cfg, logger, afero.NewOsFs())
		if err != nil {
			return err
		}

		logger.Info("running task", "task", name, "project", cfg.Project)
		h := runner.Start(ctx, name)

		// The task honors ctx itself, so wait for it to wind down.
		if err := h.Wait(context.Background()); err != nil {
			logger.Error("task failed", "task", name, "error", err)
			return err
		}

		return nil
	}
}

func listTasks(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	_, registry, err := newRunner(cfg, logger, afero.NewOsFs())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, t := range registry.List() {
		desc := t.Description
		if len(t.Deps) > 0 {
			desc += " (runs " + strings.Join(t.Deps, ", ") + ")"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", t.Name, desc)
	}
	return w.Flush()
}

// newRunner wires the compiler, build engine and watcher into the task set
func newRunner(cfg *config.Config, logger *slog.Logger, fsys afero.Fs) (*tasks.Runner, *tasks.Registry, error) {
	comp := compiler.NewShellCompiler(
		cfg.Compiler.Command,
		cfg.Compiler.Args,
		cfg.Compiler.Style,
		cfg.Compiler.Timeout.Duration,
	)

	engine, err := build.NewEngine(cfg, comp, fsys, logger, dryRun)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create build engine: %w", err)
	}

	newWatcher := func(run watch.RunFunc) (tasks.Watcher, error) {
		w, err := watch.New(cfg.SourceDir(), cfg.Sources.WatchPattern, cfg.Watch.Debounce.Duration, run, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	}

	registry := tasks.NewRegistry()
	if err := tasks.Define(registry, engine, newWatcher, tasks.Options{Strict: strict}); err != nil {
		return nil, nil, err
	}

	return tasks.NewRunner(registry), registry, nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	var cfg *config.Config

	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		loaded, found, err := config.LoadOrDefault(config.DefaultFile)
		if err != nil {
			return nil, err
		}
		if !found {
			logger.Debug("no configuration file found, using defaults", "path", config.DefaultFile)
		}
		cfg = loaded
	}

	if rootDir != "" {
		cfg.Paths.Root = rootDir
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger.Debug("configuration loaded",
		"project", cfg.Project,
		"source_dir", cfg.SourceDir(),
		"output_dir", cfg.OutputDir(),
		"browsers", cfg.Prefixer.Browsers)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
