package coverage

import (
	"github.com/zjy-dev/covfeed/internal/logger"
	"github.com/zjy-dev/covfeed/internal/vdb"
)

// BlockCount is the coverage of one block.
type BlockCount struct {
	Covered   int
	Coverable int
}

// Aggregate reads every block of the instance's metric against test, in
// block order. Covered is clamped into [0, Coverable].
//
// An instance whose metric or blocks cannot be resolved contributes no blocks.
func Aggregate(inst vdb.Instance, test vdb.Test, metric vdb.MetricType) []BlockCount {
	m, err := inst.Metric(metric)
	if err != nil {
		logger.Debug("Skipping %s: %v", inst.FullName(), err)
		return nil
	}
	blocks, err := m.Blocks()
	if err != nil {
		logger.Debug("Skipping %s: failed to list %s blocks: %v", inst.FullName(), metric, err)
		return nil
	}

	counts := make([]BlockCount, 0, len(blocks))
	for _, b := range blocks {
		coverable := b.Coverable()
		if coverable < 0 {
			coverable = 0
		}
		covered := b.Covered(test)
		if covered < 0 {
			covered = 0
		}
		if covered > coverable {
			covered = coverable
		}
		counts = append(counts, BlockCount{Covered: covered, Coverable: coverable})
	}
	return counts
}
