package coverage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/covfeed/internal/vdb"
	"github.com/zjy-dev/covfeed/internal/vdb/memdb"
)

// newDesign builds
//
//	tb          line b0(3)
//	tb.dut      line b0(8) b1(40), toggle t0(10)
//	tb.dut.alu  line b0(5)
//	tb.mon      line b0(2)
//
// with three tests registered in the given order. Merged, the line metric
// covers 45 of 58 points over 5 blocks.
func newDesign(order ...string) *memdb.Database {
	if len(order) == 0 {
		order = []string{"t1", "t2", "t3"}
	}

	db := memdb.New()
	tb := db.Root().AddChild("tb")
	tbB0 := tb.AddBlock(vdb.MetricLine, "b0", 3)
	dut := tb.AddChild("dut")
	dutB0 := dut.AddBlock(vdb.MetricLine, "b0", 8)
	dutB1 := dut.AddBlock(vdb.MetricLine, "b1", 40)
	dut.AddBlock(vdb.MetricToggle, "t0", 10)
	alu := dut.AddChild("alu")
	aluB0 := alu.AddBlock(vdb.MetricLine, "b0", 5)
	mon := tb.AddChild("mon")
	monB0 := mon.AddBlock(vdb.MetricLine, "b0", 2)

	for _, name := range order {
		t := db.AddTest(name)
		switch name {
		case "t1":
			t.Hit(dutB0, 0, 1).HitFirst(dutB1, 33).Hit(aluB0, 0)
		case "t2":
			t.Hit(dutB0, 1, 2, 3).Hit(tbB0, 0).Hit(monB0, 0, 1)
		case "t3":
			t.HitFirst(aluB0, 5)
		}
	}
	return db
}

// openSession serves db through a fresh factory.
func openSession(t *testing.T, db *memdb.Database) *vdb.Session {
	t.Helper()
	factory := vdb.NewFactory(memdb.NewStaticDriver(map[string]*memdb.Database{"design.vdb": db}))
	s, err := factory.Open("design.vdb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeTest struct{ name string }

func (f fakeTest) Name() string { return f.name }

type fakeBlock struct{ covered, coverable int }

func (b fakeBlock) Coverable() int       { return b.coverable }
func (b fakeBlock) Covered(vdb.Test) int { return b.covered }

type fakeMetric struct {
	blocks []vdb.Block
	err    error
}

func (m fakeMetric) Blocks() ([]vdb.Block, error) { return m.blocks, m.err }

type fakeInstance struct {
	name     string
	children []vdb.Instance
	metric   vdb.Metric
}

func (i *fakeInstance) FullName() string         { return i.name }
func (i *fakeInstance) Children() []vdb.Instance { return i.children }
func (i *fakeInstance) Metric(vdb.MetricType) (vdb.Metric, error) {
	if i.metric == nil {
		return nil, errors.New("no metric")
	}
	return i.metric, nil
}

// foldDatabase records the order of its merges: merging a and b yields a
// test named "a+b".
type foldDatabase struct {
	tests []vdb.Test
}

func (d *foldDatabase) Tests() ([]vdb.Test, error) { return d.tests, nil }

func (d *foldDatabase) MergeTests(a, b vdb.Test) (vdb.Test, error) {
	return fakeTest{name: a.Name() + "+" + b.Name()}, nil
}

func (d *foldDatabase) EmptyTest() vdb.Test { return fakeTest{} }
func (d *foldDatabase) Top() vdb.Instance   { return &fakeInstance{name: "top"} }
func (d *foldDatabase) Close() error        { return nil }
