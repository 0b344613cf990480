package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/covfeed/internal/corpus"
	"github.com/zjy-dev/covfeed/internal/coverage"
	"github.com/zjy-dev/covfeed/internal/exec"
	"github.com/zjy-dev/covfeed/internal/report"
	"github.com/zjy-dev/covfeed/internal/state"
	"github.com/zjy-dev/covfeed/internal/vdb"
	"github.com/zjy-dev/covfeed/internal/vdb/memdb"
)

const dbPath = "sim/Coverage.vdb"

// hits lists the covered points of the two line blocks of top.dut.
type hits struct{ b0, b1 []uint }

func buildDesign(h hits) *memdb.Database {
	db := memdb.New()
	dut := db.Root().AddChild("top").AddChild("dut")
	b0 := dut.AddBlock(vdb.MetricLine, "b0", 8)
	b1 := dut.AddBlock(vdb.MetricLine, "b1", 4)
	db.AddTest("test").Hit(b0, h.b0...).Hit(b1, h.b1...)
	return db
}

// fakeSimulator "simulates" an input by replacing the database served at
// dbPath with the design registered for the input's file name.
type fakeSimulator struct {
	dbs     map[string]*memdb.Database
	designs map[string]*memdb.Database
	calls   [][]string
	copies  int
}

func (f *fakeSimulator) Run(command string, args ...string) (*exec.ExecutionResult, error) {
	f.calls = append(f.calls, append([]string{command}, args...))
	if command == "cp" {
		f.copies++
		return &exec.ExecutionResult{}, nil
	}

	name := filepath.Base(args[0])
	if name == "crash.bin" {
		return nil, errors.New("simulator not found")
	}
	db, ok := f.designs[name]
	if !ok {
		return &exec.ExecutionResult{ExitCode: 1, Stderr: "no design"}, nil
	}
	f.dbs[dbPath] = db
	return &exec.ExecutionResult{Stdout: "PASS"}, nil
}

type fixture struct {
	sim     *fakeSimulator
	corpus  *corpus.FileManager
	metrics *state.FileMetricsManager
	outDir  string
	cfg     Config
}

func newFixture(t *testing.T, inputs map[string]*memdb.Database) *fixture {
	t.Helper()
	root := t.TempDir()

	inDir := filepath.Join(root, "inputs")
	require.NoError(t, os.MkdirAll(inDir, 0755))
	for name := range inputs {
		require.NoError(t, os.WriteFile(filepath.Join(inDir, name), []byte(name), 0644))
	}

	dbs := map[string]*memdb.Database{}
	sim := &fakeSimulator{dbs: dbs, designs: inputs}

	outDir := filepath.Join(root, "out")
	cm := corpus.NewFileManager(outDir)
	require.NoError(t, cm.Initialize())
	loaded, err := corpus.LoadInputs(inDir)
	require.NoError(t, err)
	cm.Enqueue(loaded...)

	metrics := state.NewFileMetricsManager(filepath.Join(outDir, corpus.StateDir))

	return &fixture{
		sim:     sim,
		corpus:  cm,
		metrics: metrics,
		outDir:  outDir,
		cfg: Config{
			Corpus:            cm,
			Executor:          sim,
			Factory:           vdb.NewFactory(memdb.NewStaticDriver(dbs)),
			DatabasePath:      dbPath,
			Options:           coverage.Options{Mode: coverage.BitPacked, Metric: vdb.MetricLine},
			SimulatorCommand:  "./simv",
			SimulatorArgs:     []string{"+input={input}", "-cm_dir", "{db}"},
			Reporter:          report.NewMarkdownReporter(filepath.Join(outDir, "reports")),
			State:             cm.GetStateManager(),
			Metrics:           metrics,
			BackupDir:         filepath.Join(outDir, "backups"),
			SaveOnNewCoverage: true,
		},
	}
}

func TestEngine_Run(t *testing.T) {
	f := newFixture(t, map[string]*memdb.Database{
		"a.bin": buildDesign(hits{b0: []uint{0, 1}}),
		"b.bin": buildDesign(hits{b0: []uint{0}}),
		"c.bin": buildDesign(hits{b0: []uint{1}, b1: []uint{2}}),
	})
	engine := NewEngine(f.cfg)

	require.NoError(t, engine.Run(context.Background()))

	replayed, interesting, failures := engine.Stats()
	assert.Equal(t, 3, replayed)
	assert.Equal(t, 2, interesting)
	assert.Equal(t, 0, failures)

	t.Run("simulator arguments are expanded", func(t *testing.T) {
		require.NotEmpty(t, f.sim.calls)
		first := f.sim.calls[0]
		assert.Equal(t, "./simv", first[0])
		assert.Equal(t, "+input="+filepath.Join(filepath.Dir(f.outDir), "inputs", "a.bin"), first[1])
		assert.Equal(t, []string{"-cm_dir", dbPath}, first[2:])
	})

	t.Run("interesting inputs are saved", func(t *testing.T) {
		saved := f.corpus.Saved()
		require.Len(t, saved, 2)
		assert.Equal(t, uint64(1), saved[0].Meta.ID)
		assert.Equal(t, 2, saved[0].Meta.NewPoints)
		assert.Equal(t, corpus.InputStateInteresting, saved[0].Meta.State)
		assert.Equal(t, []byte("c.bin"), saved[1].Data)
		assert.Equal(t, 1, saved[1].Meta.NewPoints)
	})

	t.Run("database is backed up per new coverage", func(t *testing.T) {
		assert.Equal(t, 2, f.sim.copies)
		last := f.sim.calls[len(f.sim.calls)-1]
		assert.Equal(t, []string{"cp", "-r", dbPath, filepath.Join(f.outDir, "backups", "coverage_Coverage_2.vdb")}, last)
	})

	t.Run("a report per new coverage", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(f.outDir, "reports"))
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("tracker holds the union", func(t *testing.T) {
		stats, err := engine.Tracker().GetStats()
		require.NoError(t, err)
		assert.Equal(t, 3, stats.CoveredPoints)
		assert.Equal(t, 12, stats.TotalPoints)
	})

	t.Run("state is persisted", func(t *testing.T) {
		st := f.cfg.State.GetState()
		assert.Equal(t, 3, st.Stats.Processed)
		assert.Equal(t, 2, st.Stats.Interesting)
		assert.Equal(t, uint32(3), st.TotalCovered)
		assert.Equal(t, engine.Tracker().History(), st.History)
		assert.FileExists(t, f.cfg.State.GetFilePath())
		assert.FileExists(t, filepath.Join(f.outDir, corpus.StateDir, state.MetricsFileName))

		m := f.metrics.GetMetrics()
		assert.Equal(t, 3, m.InputsRun)
		assert.Equal(t, 2, m.CoverageIncrInput)
	})
}

func TestEngine_Failures(t *testing.T) {
	t.Run("simulator error", func(t *testing.T) {
		f := newFixture(t, map[string]*memdb.Database{
			"crash.bin": nil,
			"ok.bin":    buildDesign(hits{b0: []uint{3}}),
		})
		engine := NewEngine(f.cfg)
		require.NoError(t, engine.Run(context.Background()))

		replayed, interesting, failures := engine.Stats()
		assert.Equal(t, 2, replayed)
		assert.Equal(t, 1, interesting)
		assert.Equal(t, 1, failures)
		assert.Equal(t, 1, f.metrics.GetMetrics().SimulatorFailures)
		assert.Equal(t, 1, f.cfg.State.GetState().Stats.Failures)
	})

	t.Run("merge failure", func(t *testing.T) {
		broken := buildDesign(hits{b0: []uint{0}})
		broken.AddTest("second")
		broken.SetMergeError(errors.New("corrupt test record"))

		f := newFixture(t, map[string]*memdb.Database{"broken.bin": broken})
		engine := NewEngine(f.cfg)

		in, ok := f.corpus.Next()
		require.True(t, ok)
		out, err := engine.ProcessInput(context.Background(), in)
		require.Error(t, err)
		assert.ErrorIs(t, err, vdb.ErrMerge)
		assert.Equal(t, corpus.InputStateFailed, out.State)
		assert.Equal(t, 1, f.metrics.GetMetrics().EncodeFailures)
		assert.Equal(t, 0, f.cfg.Factory.OpenCount())
	})

	t.Run("missing database", func(t *testing.T) {
		f := newFixture(t, map[string]*memdb.Database{"a.bin": buildDesign(hits{})})
		f.cfg.SimulatorCommand = ""
		engine := NewEngine(f.cfg)

		in, ok := f.corpus.Next()
		require.True(t, ok)
		_, err := engine.ProcessInput(context.Background(), in)
		assert.ErrorIs(t, err, vdb.ErrDatabaseOpen)
	})

	t.Run("non-zero exit still extracts", func(t *testing.T) {
		f := newFixture(t, map[string]*memdb.Database{"a.bin": buildDesign(hits{b1: []uint{0}})})
		f.sim.dbs[dbPath] = buildDesign(hits{b0: []uint{5}})
		f.sim.designs = map[string]*memdb.Database{}
		engine := NewEngine(f.cfg)

		in, ok := f.corpus.Next()
		require.True(t, ok)
		out, err := engine.ProcessInput(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, corpus.InputStateInteresting, out.State)
		assert.Equal(t, 1, f.metrics.GetMetrics().SimulatorFailures)
	})
}

func TestEngine_Resume(t *testing.T) {
	f := newFixture(t, map[string]*memdb.Database{
		"a.bin": buildDesign(hits{b0: []uint{0, 1}}),
	})

	// History already holds bits 0 and 1 of the first map word.
	f.cfg.State.UpdateCoverage(2, 12, 16.7, []uint32{2, 12, 0x3})

	engine := NewEngine(f.cfg)
	require.NoError(t, engine.Run(context.Background()))

	_, interesting, _ := engine.Stats()
	assert.Equal(t, 0, interesting)
	assert.InDelta(t, 16.7, engine.Tracker().BestScore(), 1e-9)
	assert.Empty(t, f.corpus.Saved())
}

func TestEngine_MaxIterations(t *testing.T) {
	f := newFixture(t, map[string]*memdb.Database{
		"a.bin": buildDesign(hits{b0: []uint{0}}),
		"b.bin": buildDesign(hits{b0: []uint{1}}),
		"c.bin": buildDesign(hits{b0: []uint{2}}),
	})
	f.cfg.MaxIterations = 2
	engine := NewEngine(f.cfg)
	require.NoError(t, engine.Run(context.Background()))

	replayed, _, _ := engine.Stats()
	assert.Equal(t, 2, replayed)
	assert.Equal(t, 1, f.corpus.Len())
}

func TestEngine_Cancelled(t *testing.T) {
	f := newFixture(t, map[string]*memdb.Database{"a.bin": buildDesign(hits{b0: []uint{0}})})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(f.cfg)
	require.NoError(t, engine.Run(ctx))

	replayed, _, _ := engine.Stats()
	assert.Equal(t, 0, replayed)
}

func TestEngine_RandomSource(t *testing.T) {
	f := newFixture(t, map[string]*memdb.Database{
		"a.bin": nil,
		"b.bin": nil,
	})
	f.cfg.Factory = nil
	f.cfg.SimulatorCommand = ""
	f.cfg.Random = coverage.NewRandomSource(16, 7)
	f.cfg.Options.Mode = coverage.Tally
	engine := NewEngine(f.cfg)

	require.NoError(t, engine.Run(context.Background()))

	replayed, _, failures := engine.Stats()
	assert.Equal(t, 2, replayed)
	assert.Equal(t, 0, failures)
	assert.Zero(t, f.sim.copies)
}

func TestEngine_ScratchInput(t *testing.T) {
	f := newFixture(t, map[string]*memdb.Database{})
	f.cfg.ScratchDir = filepath.Join(t.TempDir(), "scratch")
	f.sim.designs["current_input.bin"] = buildDesign(hits{b0: []uint{4}})
	engine := NewEngine(f.cfg)

	out, err := engine.ProcessInput(context.Background(), &corpus.Input{Data: []byte("stimulus")})
	require.NoError(t, err)
	assert.Equal(t, corpus.InputStateInteresting, out.State)

	data, err := os.ReadFile(filepath.Join(f.cfg.ScratchDir, "current_input.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("stimulus"), data)
}
