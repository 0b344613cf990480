package app

import (
	"fmt"
	"time"

	"github.com/zjy-dev/covfeed/internal/config"
	"github.com/zjy-dev/covfeed/internal/coverage"
	"github.com/zjy-dev/covfeed/internal/logger"
	"github.com/zjy-dev/covfeed/internal/vdb"
	"github.com/zjy-dev/covfeed/internal/vdb/gcovdb"
	"github.com/zjy-dev/covfeed/internal/vdb/memdb"
	"github.com/zjy-dev/covfeed/internal/vdb/npi"
)

// newDriver returns the database driver for a non-random driver name.
func newDriver(name string) (vdb.Driver, error) {
	switch name {
	case config.DriverSnapshot:
		return memdb.NewFileDriver(), nil
	case config.DriverGcovr:
		return gcovdb.NewDriver(), nil
	case config.DriverNPI:
		return npi.NewDriver()
	default:
		return nil, fmt.Errorf("unknown database driver %q", name)
	}
}

// randomSeed returns the configured seed, or a time based one for 0.
func randomSeed(cfg *config.Config) int64 {
	if cfg.Coverage.Seed != 0 {
		return cfg.Coverage.Seed
	}
	return time.Now().UnixNano()
}

// openSource opens the configured coverage source. The returned function
// releases it.
func openSource(cfg *config.Config) (coverage.Source, func(), error) {
	if cfg.Database.Driver == config.DriverRandom {
		return coverage.NewRandomSource(cfg.Coverage.MapSize, randomSeed(cfg)), func() {}, nil
	}

	driver, err := newDriver(cfg.Database.Driver)
	if err != nil {
		return nil, nil, err
	}
	session, err := vdb.NewFactory(driver).Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close %s: %v", session.Path(), err)
		}
	}
	return coverage.NewSessionSource(session), release, nil
}
