// Package report writes a markdown record of every input that produced new
// coverage.
package report

import (
	"github.com/zjy-dev/covfeed/internal/coverage"
	"github.com/zjy-dev/covfeed/internal/exec"
)

// Event describes one new-coverage finding.
type Event struct {
	InputID  uint64
	Source   string
	Database string
	Backup   string

	Options  coverage.Options
	Totals   coverage.Totals
	Score    float64
	Increase *coverage.CoverageIncrease
	Stats    *coverage.CoverageStats

	Instances []coverage.InstanceCoverage
	Simulator *exec.ExecutionResult
}

// Reporter defines the interface for saving coverage reports.
type Reporter interface {
	// Save writes the event and returns the report path.
	Save(ev *Event) (string, error)
}
