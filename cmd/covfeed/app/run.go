package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covfeed/internal/config"
	"github.com/zjy-dev/covfeed/internal/corpus"
	"github.com/zjy-dev/covfeed/internal/coverage"
	"github.com/zjy-dev/covfeed/internal/exec"
	"github.com/zjy-dev/covfeed/internal/harness"
	"github.com/zjy-dev/covfeed/internal/logger"
	"github.com/zjy-dev/covfeed/internal/report"
	"github.com/zjy-dev/covfeed/internal/state"
	"github.com/zjy-dev/covfeed/internal/vdb"
)

// NewRunCommand creates the "run" subcommand.
func NewRunCommand(opts *globalOptions) *cobra.Command {
	var (
		inputDir      string
		outputDir     string
		maxIterations int
		noUI          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay inputs through the simulator and keep those with new coverage.",
		Long: `Replay every input of the input directory: run the simulator, encode the
coverage database into a feedback map and compare it with everything seen so
far. Inputs with new coverage are saved to the corpus and reported.

The run resumes from the state of an earlier run in the same output
directory.

Output directory structure:
  {output_dir}/
    ├── corpus/      # Inputs with new coverage
    ├── metadata/    # Per-input metadata
    ├── reports/     # Markdown report per new coverage
    ├── backups/     # Database copies (harness.backup_database)
    └── state/       # Run state and metrics (for resume)

Examples:
  # Replay with the simulator configured in config.yaml
  covfeed run

  # Replay at most 100 inputs from a custom directory
  covfeed run --input stimuli --max-iterations 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			// Use config values as defaults, command line flags override
			if cmd.Flags().Changed("input") {
				cfg.Harness.InputDir = inputDir
			}
			if cmd.Flags().Changed("output") {
				cfg.Harness.OutputDir = outputDir
			}
			if cmd.Flags().Changed("max-iterations") {
				cfg.Harness.MaxIterations = maxIterations
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if cfg.Log.Dir != "" {
				if err := logger.InitWithOptions(cfg.Log.Level, cfg.Log.Dir, logger.FileOptions{
					MaxSize:    cfg.Log.MaxSize,
					MaxBackups: cfg.Log.MaxBackups,
					MaxAge:     cfg.Log.MaxAge,
					Compress:   cfg.Log.Compress,
				}); err != nil {
					return err
				}
				logger.Info("Logging to %s", logger.GetLogFilePath())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, metrics, err := newEngine(cfg, !noUI && state.IsTerminal())
			if err != nil {
				return err
			}
			if err := engine.Run(ctx); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), metrics.FormatSummary())
			return nil
		},
	}

	cmd.Flags().StringVar(&inputDir, "input", "inputs", "Directory of inputs to replay")
	cmd.Flags().StringVar(&outputDir, "output", "fuzz_out", "Output directory")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Maximum number of inputs to replay (0 = unlimited)")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "Disable the terminal dashboard")
	return cmd
}

// newEngine assembles the replay engine for cfg.
func newEngine(cfg *config.Config, withUI bool) (*harness.Engine, *state.FileMetricsManager, error) {
	outDir := cfg.Harness.OutputDir
	logger.Info("Output directory: %s", outDir)

	corpusManager := corpus.NewFileManager(outDir)
	if err := corpusManager.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize corpus: %w", err)
	}
	if err := corpusManager.Recover(); err != nil {
		return nil, nil, fmt.Errorf("failed to recover corpus: %w", err)
	}
	if n := len(corpusManager.Saved()); n > 0 {
		logger.Info("Found %d saved inputs, resuming from checkpoint...", n)
	}

	inputs, err := corpus.LoadInputs(cfg.Harness.InputDir)
	if err != nil {
		return nil, nil, err
	}
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("no inputs found in %s", cfg.Harness.InputDir)
	}
	corpusManager.Enqueue(inputs...)
	logger.Info("Loaded %d inputs from %s", len(inputs), cfg.Harness.InputDir)

	covOpts, err := cfg.Coverage.Options()
	if err != nil {
		return nil, nil, err
	}

	metrics := state.NewFileMetricsManager(filepath.Join(outDir, corpus.StateDir))
	if err := metrics.Load(); err != nil {
		logger.Warn("Ignoring previous metrics: %v", err)
	}

	hcfg := harness.Config{
		Corpus:            corpusManager,
		Executor:          exec.NewCommandExecutorIn(cfg.Simulator.WorkDir, cfg.Simulator.Timeout),
		DatabasePath:      cfg.Database.Path,
		Options:           covOpts,
		SimulatorCommand:  cfg.Simulator.Command,
		SimulatorArgs:     cfg.Simulator.Args,
		Reporter:          report.NewMarkdownReporter(filepath.Join(outDir, "reports")),
		State:             corpusManager.GetStateManager(),
		Metrics:           metrics,
		ScratchDir:        filepath.Join(outDir, "scratch"),
		MaxIterations:     cfg.Harness.MaxIterations,
		SaveOnNewCoverage: cfg.Harness.SaveOnNewCoverage,
	}
	if cfg.Harness.BackupDatabase {
		hcfg.BackupDir = filepath.Join(outDir, "backups")
	}

	if cfg.Database.Driver == config.DriverRandom {
		hcfg.Random = coverage.NewRandomSource(cfg.Coverage.MapSize, randomSeed(cfg))
	} else {
		driver, err := newDriver(cfg.Database.Driver)
		if err != nil {
			return nil, nil, err
		}
		hcfg.Factory = vdb.NewFactory(driver)
	}

	if withUI {
		hcfg.UI = state.NewTerminalUI()
	}
	return harness.NewEngine(hcfg), metrics, nil
}
