package gcovdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

func TestConvert_Nil(t *testing.T) {
	r := Convert("empty", nil)
	assert.Equal(t, "empty", r.Name)
	assert.Empty(t, r.Files)
}

func TestFromReports(t *testing.T) {
	reports := []Report{
		{
			Name: "smoke",
			Files: []File{
				{Path: "rtl/alu.cpp", Functions: []Function{{Name: "eval", Total: 10, Covered: 4}}},
				{Path: "rtl/top.cpp", Functions: []Function{{Name: "tick", Total: 5, Covered: 5}}},
			},
		},
		{
			Name: "regress",
			Files: []File{
				{Path: "rtl/alu.cpp", Functions: []Function{
					{Name: "eval", Total: 12, Covered: 6},
					{Name: "reset", Total: 3, Covered: 1},
				}},
			},
		},
	}

	db := FromReports(reports)

	children := db.Top().Children()
	require.Len(t, children, 2)
	assert.Equal(t, "rtl/alu.cpp", children[0].FullName())
	assert.Equal(t, "rtl/top.cpp", children[1].FullName())

	eval, ok := db.Block("rtl/alu.cpp:eval")
	require.True(t, ok)
	assert.Equal(t, 12, eval.Coverable(), "sized by the largest total")

	tests, err := db.Tests()
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, 4, eval.Covered(tests[0]))
	assert.Equal(t, 6, eval.Covered(tests[1]))

	merged, err := db.MergeTests(tests[0], tests[1])
	require.NoError(t, err)
	assert.Equal(t, 6, eval.Covered(merged))

	m, err := children[0].Metric(vdb.MetricLine)
	require.NoError(t, err)
	blocks, err := m.Blocks()
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	_, err = children[0].Metric(vdb.MetricToggle)
	assert.ErrorIs(t, err, vdb.ErrMetricResolution)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gcovr reports")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	d := NewDriver()
	require.NoError(t, d.Init())
	_, err = d.Open(bad)
	assert.Error(t, err)
	require.NoError(t, d.End())
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"t3.json", "t1.json", "t2.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}

	db, err := Load(dir)
	require.NoError(t, err)

	tests, err := db.Tests()
	require.NoError(t, err)
	names := make([]string, len(tests))
	for i, tc := range tests {
		names[i] = tc.Name()
	}
	assert.Equal(t, []string{"t1", "t2", "t3"}, names)
	assert.Empty(t, db.Top().Children())
}
