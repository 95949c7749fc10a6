package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/jmgilman/go/fs/billy"
	"github.com/spf13/cobra"

	"github.com/blurfx/unnest/internal/archive"
	"github.com/blurfx/unnest/internal/config"
	"github.com/blurfx/unnest/internal/formats"
	"github.com/blurfx/unnest/internal/logging"
	"github.com/blurfx/unnest/internal/nested"
	"github.com/blurfx/unnest/internal/progress"
	"github.com/blurfx/unnest/internal/walker"
)

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, newStyles(stderr).failure.Render("Error:"), exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, newStyles(stderr).failure.Render("Error:"), err)
	return 1
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unnest [directory]",
		Short: "Recursively extract archives in a directory tree",
		Long: `unnest finds zip, rar, 7z and tar archives under a directory and
extracts each one next to itself. With --process-nested, every archive is
extracted into <name>_extracted and archives found inside are unwrapped
too, up to --max-depth levels.

Settings come from the defaults, then the --config JSON file, then flags,
then the positional directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	registerFlags(cmd)
	return cmd
}

func runRoot(cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	logger, closeLog, err := logging.Setup(logging.Options{
		Verbose: cfg.Verbose,
		LogFile: cfg.LogFile,
		Output:  stderr,
	})
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintln(stderr, "closing log file:", err)
		}
	}()

	var reporter progress.Reporter = progress.NewBar(stderr)
	if quiet, _ := cmd.Flags().GetBool(flagQuiet); quiet {
		reporter = progress.Nop{}
	}

	stats, runErr := run(cmd.Context(), cfg, logger, reporter)
	printSummary(stdout, newStyles(stdout), stats, cfg.DryRun)

	switch {
	case runErr != nil:
		return &ExitError{Code: 1, Err: runErr}
	case stats.FailedExtractions > 0:
		return &ExitError{Code: 1}
	}
	return nil
}

// resolveConfig layers defaults, the config file, flags and the positional
// directory, then validates the result.
func resolveConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	v := config.NewViper()
	if path, _ := cmd.Flags().GetString(flagConfig); path != "" {
		if err := config.ReadFile(v, path); err != nil {
			return config.Config{}, err
		}
	}
	if err := applyFlags(cmd, v); err != nil {
		return config.Config{}, err
	}
	if len(args) == 1 {
		v.Set(config.KeyBaseDir, args[0])
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// run extracts with the engine the configuration selects.
func run(ctx context.Context, cfg config.Config, logger *log.Logger, reporter progress.Reporter) (archive.Stats, error) {
	if cfg.DryRun {
		if _, err := os.Stat(cfg.BaseDir); err != nil {
			logger.Warn("base directory does not exist, nothing to do", "dir", cfg.BaseDir)
			return archive.Stats{}, nil
		}
	}

	reg, err := formats.Build(cfg.Selection(), cfg.ExtractOptions(logger))
	if err != nil {
		return archive.Stats{}, err
	}
	if reg.Len() == 0 {
		return archive.Stats{}, fmt.Errorf("%w: no enabled format is available", archive.ErrToolUnavailable)
	}
	logger.Info("starting", "dir", cfg.BaseDir, "nested", cfg.ProcessNested, "dry_run", cfg.DryRun)

	if cfg.ProcessNested {
		opts := cfg.NestedOptions(logger)
		opts.Progress = reporter
		sum := nested.New(reg, opts).Run(ctx, cfg.BaseDir)
		return sum.Stats, sum.Err
	}

	opts := cfg.WalkerOptions(logger)
	opts.Progress = reporter
	return walker.New(reg, billy.NewLocal(), opts).Process(ctx, cfg.BaseDir)
}
