// Package vdb describes the coverage database the feedback engine reads from.
//
// The database itself is owned by an external tool (for example a vendor
// simulator's coverage library). This package only fixes the shape of the
// handles the engine needs and owns the lifetime of the process-wide native
// state through Factory and Session.
package vdb

// Test is an opaque handle to one test run's coverage, or to the result of
// merging several of them.
type Test interface {
	Name() string
}

// Instance is a node of the design instance hierarchy. It never outlives the
// Database it was obtained from.
type Instance interface {
	// FullName is the canonical hierarchical path used for filter matching.
	FullName() string

	// Children returns the child instances in the database's native order.
	Children() []Instance

	// Metric resolves the handle of the given metric type for this instance.
	// It returns an error wrapping ErrMetricResolution when the instance has
	// no such metric.
	Metric(m MetricType) (Metric, error)
}

// Metric is the per-instance handle of one metric type.
type Metric interface {
	// Blocks returns the child coverage blocks in iteration order.
	Blocks() ([]Block, error)
}

// Block is a single coverage unit under a metric.
type Block interface {
	// Coverable is the total number of coverage points of the block.
	Coverable() int

	// Covered is the number of points observed by the given test. Native
	// implementations may return a negative value when the query fails.
	Covered(t Test) int
}

// Database is an open coverage database.
type Database interface {
	// Tests enumerates the individual test records registered in the database.
	Tests() ([]Test, error)

	// MergeTests folds two test records into one.
	MergeTests(a, b Test) (Test, error)

	// EmptyTest returns a record with no coverage, used when the database
	// holds no test at all.
	EmptyTest() Test

	// Top returns the top scope. Its descendants are the design instances.
	Top() Instance

	// Close releases the database handle.
	Close() error
}

// Driver is the process-wide native library behind a Database.
// Init must run once before the first Open and End once after the last
// Database is closed; Factory enforces this.
type Driver interface {
	Init() error
	End() error
	Open(path string) (Database, error)
}
