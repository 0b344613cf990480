// Package memdb is an in-memory coverage database. It backs unit tests of the
// feedback engine, the snapshot file driver and adapters from other coverage
// formats, and stands in for the vendor library where it is not installed.
//
// Each block records covered points as a bitset per test, so merging tests is
// a set union and does not depend on the order of the fold.
package memdb

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

var errClosed = errors.New("database is closed")

// Database is an in-memory vdb.Database.
type Database struct {
	root     *Instance
	tests    []*Test
	blocks   map[string]*Block
	mergeErr error
	closed   bool
}

// New creates an empty database.
func New() *Database {
	db := &Database{blocks: make(map[string]*Block)}
	db.root = &Instance{db: db, metrics: make(map[vdb.MetricType]*Metric)}
	return db
}

// Root returns the top scope. Instances added under it are the design tops.
func (db *Database) Root() *Instance {
	return db.root
}

// AddTest registers a new, empty test record.
func (db *Database) AddTest(name string) *Test {
	t := newTest(name)
	db.tests = append(db.tests, t)
	return t
}

// Block looks a block up by its key ("<instance path>:<block id>").
func (db *Database) Block(key string) (*Block, bool) {
	b, ok := db.blocks[key]
	return b, ok
}

// SetMergeError makes every subsequent MergeTests call fail with err.
func (db *Database) SetMergeError(err error) {
	db.mergeErr = err
}

// Closed reports whether Close has been called since the last open.
func (db *Database) Closed() bool {
	return db.closed
}

// Tests implements vdb.Database.
func (db *Database) Tests() ([]vdb.Test, error) {
	if db.closed {
		return nil, errClosed
	}
	tests := make([]vdb.Test, len(db.tests))
	for i, t := range db.tests {
		tests[i] = t
	}
	return tests, nil
}

// MergeTests implements vdb.Database. The result holds the union of the
// covered points of both records.
func (db *Database) MergeTests(a, b vdb.Test) (vdb.Test, error) {
	if db.closed {
		return nil, errClosed
	}
	if db.mergeErr != nil {
		return nil, db.mergeErr
	}

	ta, ok := a.(*Test)
	if !ok || ta == nil {
		return nil, fmt.Errorf("foreign test record %T", a)
	}
	tb, ok := b.(*Test)
	if !ok || tb == nil {
		return nil, fmt.Errorf("foreign test record %T", b)
	}

	merged := newTest("merged")
	for blk, set := range ta.hits {
		merged.hits[blk] = set.Clone()
	}
	for blk, set := range tb.hits {
		if cur, ok := merged.hits[blk]; ok {
			cur.InPlaceUnion(set)
		} else {
			merged.hits[blk] = set.Clone()
		}
	}
	return merged, nil
}

// EmptyTest implements vdb.Database.
func (db *Database) EmptyTest() vdb.Test {
	return newTest("")
}

// Top implements vdb.Database.
func (db *Database) Top() vdb.Instance {
	return db.root
}

// Close implements vdb.Database.
func (db *Database) Close() error {
	if db.closed {
		return errClosed
	}
	db.closed = true
	return nil
}

func (db *Database) reopen() {
	db.closed = false
}

// Instance is a node of the in-memory hierarchy.
type Instance struct {
	db       *Database
	name     string
	full     string
	children []*Instance
	metrics  map[vdb.MetricType]*Metric
}

// AddChild adds a child instance whose full name is the parent's full name
// and name joined by a dot.
func (i *Instance) AddChild(name string) *Instance {
	full := name
	if i.full != "" {
		full = i.full + "." + name
	}
	return i.AddChildPath(name, full)
}

// AddChildPath adds a child instance with an explicit full name.
func (i *Instance) AddChildPath(name, full string) *Instance {
	child := &Instance{
		db:      i.db,
		name:    name,
		full:    full,
		metrics: make(map[vdb.MetricType]*Metric),
	}
	i.children = append(i.children, child)
	return child
}

// AddBlock appends a block to the instance's metric m. Block ids must be
// unique per instance.
func (i *Instance) AddBlock(m vdb.MetricType, id string, coverable int) *Block {
	if coverable < 0 {
		coverable = 0
	}
	metric, ok := i.metrics[m]
	if !ok {
		metric = &Metric{}
		i.metrics[m] = metric
	}
	b := &Block{key: i.full + ":" + id, coverable: coverable}
	metric.blocks = append(metric.blocks, b)
	i.db.blocks[b.key] = b
	return b
}

// Name returns the local instance name.
func (i *Instance) Name() string {
	return i.name
}

// FullName implements vdb.Instance.
func (i *Instance) FullName() string {
	return i.full
}

// Children implements vdb.Instance.
func (i *Instance) Children() []vdb.Instance {
	children := make([]vdb.Instance, len(i.children))
	for k, c := range i.children {
		children[k] = c
	}
	return children
}

// Metric implements vdb.Instance.
func (i *Instance) Metric(m vdb.MetricType) (vdb.Metric, error) {
	metric, ok := i.metrics[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no %s metric", vdb.ErrMetricResolution, i.full, m)
	}
	return metric, nil
}

// Metric holds the blocks of one metric type of an instance.
type Metric struct {
	blocks []*Block
}

// Blocks implements vdb.Metric.
func (m *Metric) Blocks() ([]vdb.Block, error) {
	blocks := make([]vdb.Block, len(m.blocks))
	for k, b := range m.blocks {
		blocks[k] = b
	}
	return blocks, nil
}

// Block is a coverage block with a fixed number of coverable points.
type Block struct {
	key       string
	coverable int
}

// Key returns "<instance path>:<block id>".
func (b *Block) Key() string {
	return b.key
}

// Coverable implements vdb.Block.
func (b *Block) Coverable() int {
	return b.coverable
}

// Covered implements vdb.Block. Records from another database kind yield -1,
// the way a native query failure does.
func (b *Block) Covered(t vdb.Test) int {
	mt, ok := t.(*Test)
	if !ok || mt == nil {
		return -1
	}
	set, ok := mt.hits[b]
	if !ok {
		return 0
	}
	return int(set.Count())
}

// Test is a test record: the covered points of each block.
type Test struct {
	name string
	hits map[*Block]*bitset.BitSet
}

func newTest(name string) *Test {
	return &Test{name: name, hits: make(map[*Block]*bitset.BitSet)}
}

// Name implements vdb.Test.
func (t *Test) Name() string {
	return t.name
}

// Hit marks points of block b as covered. Points outside the block are
// ignored.
func (t *Test) Hit(b *Block, points ...uint) *Test {
	set, ok := t.hits[b]
	if !ok {
		set = bitset.New(uint(b.coverable))
		t.hits[b] = set
	}
	for _, p := range points {
		if p < uint(b.coverable) {
			set.Set(p)
		}
	}
	return t
}

// HitFirst marks the first n points of block b as covered.
func (t *Test) HitFirst(b *Block, n int) *Test {
	points := make([]uint, 0, n)
	for p := 0; p < n; p++ {
		points = append(points, uint(p))
	}
	return t.Hit(b, points...)
}
