package coverage

import (
	"fmt"
	"sort"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

// MergeTests folds every test record of db into one record.
//
// Records are folded pairwise in name order so the result does not depend on
// the order the database enumerates them. A database without tests yields
// db.EmptyTest(). Any failed step returns an error wrapping vdb.ErrMerge and
// no record.
func MergeTests(db vdb.Database) (vdb.Test, error) {
	tests, err := db.Tests()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to enumerate tests: %v", vdb.ErrMerge, err)
	}
	if len(tests) == 0 {
		return db.EmptyTest(), nil
	}

	sorted := make([]vdb.Test, len(tests))
	copy(sorted, tests)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name() < sorted[j].Name()
	})

	merged := sorted[0]
	for _, t := range sorted[1:] {
		next, err := db.MergeTests(merged, t)
		if err != nil {
			return nil, fmt.Errorf("%w: %s into %s: %v", vdb.ErrMerge, t.Name(), merged.Name(), err)
		}
		if next == nil {
			return nil, fmt.Errorf("%w: %s into %s: no result", vdb.ErrMerge, t.Name(), merged.Name())
		}
		merged = next
	}
	return merged, nil
}
