// Package coverage turns a coverage database into the fixed-size feedback
// map a coverage-guided fuzzer consumes as its novelty signal.
//
// Extraction is a two-pass protocol over one open session: Size walks the
// filtered instance hierarchy to compute the buffer capacity, Fill walks it
// again and encodes every block of the selected metric into the buffer. The
// first two words of the map are a (covered, coverable) header.
package coverage

// CoverageStats holds coverage statistics for display and decision making.
type CoverageStats struct {
	// Overall coverage percentage (0-100)
	CoveragePercentage float64

	// Point coverage
	TotalPoints   int
	CoveredPoints int

	// Number of map words that carry a non-zero value.
	ActiveWords int
}

// CoverageIncrease holds information about what coverage was newly gained by
// one feedback map.
type CoverageIncrease struct {
	// Summary of what was newly covered (human-readable)
	Summary string

	// Words whose value grew against the accumulated history.
	NewWords int

	// Bits newly set (bit-packed maps) or count delta summed over words
	// (tally maps).
	NewlyCoveredPoints int
}
