package coverage

import (
	"github.com/zjy-dev/covfeed/internal/vdb"
)

// InstanceCoverage is the coverage of one matched instance.
type InstanceCoverage struct {
	Name      string
	Blocks    int
	Covered   int
	Coverable int
}

// Score returns the instance's coverage percentage.
func (c InstanceCoverage) Score() float64 {
	return Score(c.Covered, c.Coverable)
}

// Breakdown returns the per-instance totals of the filtered hierarchy in walk
// order. Instances without blocks of the metric are omitted.
func Breakdown(db vdb.Database, test vdb.Test, opts Options) []InstanceCoverage {
	var out []InstanceCoverage
	w := NewWalker(db.Top(), opts.Filter)
	for w.Next() {
		inst := w.Instance()
		counts := Aggregate(inst, test, opts.Metric)
		if len(counts) == 0 {
			continue
		}
		row := InstanceCoverage{Name: inst.FullName(), Blocks: len(counts)}
		for _, c := range counts {
			row.Covered += c.Covered
			row.Coverable += c.Coverable
		}
		out = append(out, row)
	}
	return out
}

// Breakdown returns the per-instance totals of the session's merged record.
func (s *SessionSource) Breakdown(opts Options) ([]InstanceCoverage, error) {
	var rows []InstanceCoverage
	err := s.session.Use(func(db vdb.Database) error {
		test, err := s.test(db)
		if err != nil {
			return err
		}
		rows = Breakdown(db, test, opts)
		return nil
	})
	return rows, err
}
