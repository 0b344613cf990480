package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/zjy-dev/covfeed/internal/coverage"
	"github.com/zjy-dev/covfeed/internal/vdb"
)

// Supported database drivers.
const (
	DriverSnapshot = "snapshot"
	DriverGcovr    = "gcovr"
	DriverNPI      = "npi"
	DriverRandom   = "random"
)

// Config is the top-level covfeed configuration, read from the "config" key.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Coverage  CoverageConfig  `mapstructure:"coverage"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Harness   HarnessConfig   `mapstructure:"harness"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig selects where coverage is read from.
type DatabaseConfig struct {
	// Driver is one of snapshot, gcovr, npi or random.
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// CoverageConfig controls how the feedback map is built.
type CoverageConfig struct {
	Metric   string `mapstructure:"metric"`
	Filter   string `mapstructure:"filter"`
	Encoding string `mapstructure:"encoding"`
	// MapSize is the map size in words for the random driver.
	MapSize int   `mapstructure:"map_size"`
	Seed    int64 `mapstructure:"seed"`
}

// SimulatorConfig describes the command that produces the coverage database
// for one input. "{input}" in Args is replaced with the input path and "{db}"
// with database.path.
type SimulatorConfig struct {
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	WorkDir string        `mapstructure:"work_dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HarnessConfig controls the replay loop.
type HarnessConfig struct {
	InputDir          string `mapstructure:"input_dir"`
	OutputDir         string `mapstructure:"output_dir"`
	MaxIterations     int    `mapstructure:"max_iterations"`
	SaveOnNewCoverage bool   `mapstructure:"save_on_new_coverage"`
	BackupDatabase    bool   `mapstructure:"backup_database"`
}

// LogConfig controls the logger and its rotating file sink.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type configFile struct {
	Config Config `mapstructure:"config"`
}

// Resolve loads path, or configs/config.yaml when path is empty. A missing
// configs/config.yaml yields the defaults. The result is not validated so
// callers can apply overrides first.
func Resolve(path string) (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var file configFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	return &file.Config, nil
}

// DotEnvFile is read by Resolve for COVFEED_* variables. Variables already
// set in the environment win.
const DotEnvFile = ".env"

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("config.database.driver", DriverSnapshot)
	v.SetDefault("config.database.path", "")
	v.SetDefault("config.coverage.metric", "line")
	v.SetDefault("config.coverage.filter", "")
	v.SetDefault("config.coverage.encoding", "bitpacked")
	v.SetDefault("config.coverage.map_size", 1024)
	v.SetDefault("config.coverage.seed", 0)
	v.SetDefault("config.simulator.command", "")
	v.SetDefault("config.simulator.args", []string{})
	v.SetDefault("config.simulator.work_dir", "")
	v.SetDefault("config.simulator.timeout", "0s")
	v.SetDefault("config.harness.input_dir", "inputs")
	v.SetDefault("config.harness.output_dir", "fuzz_out")
	v.SetDefault("config.harness.max_iterations", 0)
	v.SetDefault("config.harness.save_on_new_coverage", true)
	v.SetDefault("config.harness.backup_database", false)
	v.SetDefault("config.log.level", "info")
	v.SetDefault("config.log.dir", "")
	v.SetDefault("config.log.max_size", 100)
	v.SetDefault("config.log.max_backups", 5)
	v.SetDefault("config.log.max_age", 30)
	v.SetDefault("config.log.compress", false)

	// COVFEED_DATABASE_PATH overrides config.database.path. Viper upper-cases
	// the prefixed key before replacing.
	v.SetEnvPrefix("COVFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer("CONFIG.", "", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSnapshot, DriverGcovr, DriverNPI:
		if c.Database.Path == "" && c.Simulator.Command == "" {
			return fmt.Errorf("database.path is required for driver %q", c.Database.Driver)
		}
	case DriverRandom:
		if c.Coverage.MapSize < coverage.HeaderWords {
			return fmt.Errorf("coverage.map_size must be at least %d, got %d", coverage.HeaderWords, c.Coverage.MapSize)
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if _, err := c.Coverage.Mode(); err != nil {
		return err
	}
	if _, err := c.Coverage.MetricType(); err != nil {
		return err
	}
	if c.Simulator.Timeout < 0 {
		return fmt.Errorf("simulator.timeout must not be negative")
	}
	if c.Harness.MaxIterations < 0 {
		return fmt.Errorf("harness.max_iterations must not be negative")
	}
	return nil
}

// Mode parses the configured encoding.
func (c *CoverageConfig) Mode() (coverage.Mode, error) {
	return coverage.ParseMode(c.Encoding)
}

// MetricType parses the configured metric.
func (c *CoverageConfig) MetricType() (vdb.MetricType, error) {
	return vdb.ParseMetricType(c.Metric)
}

// Options returns the encoder options for this configuration.
func (c *CoverageConfig) Options() (coverage.Options, error) {
	mode, err := c.Mode()
	if err != nil {
		return coverage.Options{}, err
	}
	metric, err := c.MetricType()
	if err != nil {
		return coverage.Options{}, err
	}
	return coverage.Options{Mode: mode, Metric: metric, Filter: c.Filter}, nil
}
