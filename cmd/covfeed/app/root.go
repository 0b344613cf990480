package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covfeed/internal/config"
	"github.com/zjy-dev/covfeed/internal/logger"
)

// globalOptions are the flags shared by every subcommand. Each one overrides
// its config value only when set on the command line.
type globalOptions struct {
	configPath string
	logLevel   string
	driver     string
	dbPath     string
	metric     string
	filter     string
	encoding   string
	mapSize    int
	seed       int64
}

// NewCovfeedCommand creates the root command for the covfeed tool.
func NewCovfeedCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "covfeed",
		Short: "Coverage feedback maps from simulator coverage databases.",
		Long: `covfeed reads a simulator coverage database, merges its test records and
encodes the coverage of a filtered instance hierarchy into a fixed-size
feedback map for a coverage-guided fuzzer.

Configuration is read from configs/config.yaml (or --config) under the
'config' section; COVFEED_* environment variables and flags override it.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Configuration file (default: configs/config.yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.driver, "driver", config.DriverSnapshot, "Database driver (snapshot, gcovr, npi, random)")
	pf.StringVar(&opts.dbPath, "db", "", "Coverage database path")
	pf.StringVar(&opts.metric, "metric", "line", "Coverage metric (line, toggle, fsm, condition, branch, assert or a number)")
	pf.StringVar(&opts.filter, "filter", "", "Only instances whose full name starts with this prefix")
	pf.StringVar(&opts.encoding, "encoding", "bitpacked", "Map encoding (tally or bitpacked)")
	pf.IntVar(&opts.mapSize, "map-size", 1024, "Map size in words for the random driver")
	pf.Int64Var(&opts.seed, "seed", 0, "Seed for the random driver (0 = time based)")

	cmd.AddCommand(NewSizeCommand(opts))
	cmd.AddCommand(NewFillCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewRandomizeCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// load resolves the configuration, applies the flags that were set and
// configures the logger.
func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Resolve(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("driver") {
		cfg.Database.Driver = o.driver
	}
	if flags.Changed("db") {
		cfg.Database.Path = o.dbPath
	}
	if flags.Changed("metric") {
		cfg.Coverage.Metric = o.metric
	}
	if flags.Changed("filter") {
		cfg.Coverage.Filter = o.filter
	}
	if flags.Changed("encoding") {
		cfg.Coverage.Encoding = o.encoding
	}
	if flags.Changed("map-size") {
		cfg.Coverage.MapSize = o.mapSize
	}
	if flags.Changed("seed") {
		cfg.Coverage.Seed = o.seed
	}

	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}
