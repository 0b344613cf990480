package coverage

import (
	"fmt"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

// Options select what a traversal reads and how it is encoded.
type Options struct {
	Mode   Mode
	Metric vdb.MetricType
	// Filter is a byte prefix of instance full names; empty matches all.
	Filter string
}

// Sizing is the result of the sizing pass.
type Sizing struct {
	Blocks    int
	Coverable int
	Covered   int
}

// Items is the number of encoded items: blocks for Tally, coverable points
// for BitPacked.
func (s Sizing) Items(mode Mode) int {
	if mode == BitPacked {
		return s.Coverable
	}
	return s.Blocks
}

// Words is the exact map capacity, header included, a Fill in mode needs.
func (s Sizing) Words(mode Mode) int {
	if mode == BitPacked {
		return HeaderWords + (s.Coverable+wordBits-1)/wordBits
	}
	return HeaderWords + s.Blocks
}

// Size walks the filtered hierarchy and sums the blocks of opts.Metric.
func Size(db vdb.Database, test vdb.Test, opts Options) (Sizing, error) {
	m := newSizingMap(opts.Mode)
	if err := traverse(db, test, opts, m); err != nil {
		return Sizing{}, err
	}
	t := m.Totals()
	return Sizing{Blocks: t.Blocks, Coverable: t.Coverable, Covered: t.Covered}, nil
}

// Fill encodes the filtered hierarchy into words and writes the header once
// the traversal completed. words must hold at least Size(...).Words(opts.Mode)
// words; otherwise an error wrapping ErrCapacityMismatch is returned and the
// header is left unwritten.
func Fill(db vdb.Database, test vdb.Test, words []uint32, opts Options) (Totals, error) {
	m := newFillMap(words, opts.Mode)
	if err := traverse(db, test, opts, m); err != nil {
		return m.Totals(), err
	}
	if err := m.finish(); err != nil {
		return m.Totals(), err
	}
	return m.Totals(), nil
}

func traverse(db vdb.Database, test vdb.Test, opts Options, m *CoverageMap) error {
	return Walk(db.Top(), opts.Filter, func(inst vdb.Instance) error {
		for _, c := range Aggregate(inst, test, opts.Metric) {
			if err := m.record(c); err != nil {
				return fmt.Errorf("failed to encode %s: %w", inst.FullName(), err)
			}
		}
		return nil
	})
}
