// Package gcovdb exposes gcovr uncovered-line reports as a coverage database,
// so Verilator and other gcov based flows can drive the feedback engine.
//
// Every source file becomes an instance whose full name is the file path.
// Every function becomes a line-metric block with one point per executable
// line. Each report is one test record.
package gcovdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/zjy-dev/gcovr-json-util/v2/pkg/gcovr"
	"golang.org/x/sync/errgroup"

	"github.com/zjy-dev/covfeed/internal/vdb"
	"github.com/zjy-dev/covfeed/internal/vdb/memdb"
)

// Report is one test's gcov coverage.
type Report struct {
	Name  string
	Files []File
}

// File is the coverage of one source file.
type File struct {
	Path      string
	Functions []Function
}

// Function is the line coverage of one function.
type Function struct {
	Name    string
	Total   int
	Covered int
}

// Convert flattens a gcovr report. The demangled name is preferred when
// present.
func Convert(name string, report *gcovr.UncoveredReport) Report {
	out := Report{Name: name}
	if report == nil {
		return out
	}

	for _, f := range report.Files {
		file := File{Path: f.FilePath}
		for _, fn := range f.UncoveredFunctions {
			fnName := fn.FunctionName
			if fn.DemangledName != "" {
				fnName = fn.DemangledName
			}
			total := int(fn.TotalLines)
			covered := int(fn.CoveredLines)
			// Older reports only carry the uncovered lines.
			if covered == 0 && total > len(fn.UncoveredLineNumbers) {
				covered = total - len(fn.UncoveredLineNumbers)
			}
			file.Functions = append(file.Functions, Function{
				Name:    fnName,
				Total:   total,
				Covered: covered,
			})
		}
		out.Files = append(out.Files, file)
	}
	return out
}

// FromReports builds a database holding one test per report. A function's
// block is sized by the largest line total any report gives it.
func FromReports(reports []Report) *memdb.Database {
	db := memdb.New()

	type fnKey struct{ path, name string }
	totals := make(map[fnKey]int)
	order := make(map[string][]string)
	var paths []string

	for _, r := range reports {
		for _, f := range r.Files {
			if _, seen := order[f.Path]; !seen {
				order[f.Path] = nil
				paths = append(paths, f.Path)
			}
			for _, fn := range f.Functions {
				k := fnKey{f.Path, fn.Name}
				if _, seen := totals[k]; !seen {
					order[f.Path] = append(order[f.Path], fn.Name)
				}
				if fn.Total > totals[k] {
					totals[k] = fn.Total
				}
			}
		}
	}
	sort.Strings(paths)

	blocks := make(map[fnKey]*memdb.Block)
	for _, p := range paths {
		inst := db.Root().AddChildPath(filepath.Base(p), p)
		for _, fnName := range order[p] {
			k := fnKey{p, fnName}
			blocks[k] = inst.AddBlock(vdb.MetricLine, fnName, totals[k])
		}
	}

	for _, r := range reports {
		t := db.AddTest(r.Name)
		for _, f := range r.Files {
			for _, fn := range f.Functions {
				t.HitFirst(blocks[fnKey{f.Path, fn.Name}], fn.Covered)
			}
		}
	}
	return db
}

// LoadReport reads one gcovr JSON report.
func LoadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read gcovr report %s: %w", path, err)
	}
	var raw gcovr.UncoveredReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return Report{}, fmt.Errorf("failed to parse gcovr report %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Convert(name, &raw), nil
}

// Load reads a report file, or every *.json report in a directory.
func Load(path string) (*memdb.Database, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("failed to list reports in %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no gcovr reports in %s", path)
		}
		sort.Strings(files)
	}

	// Each worker writes its own slot; test order stays the file order.
	reports := make([]Report, len(files))
	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		group.Go(func() error {
			r, err := LoadReport(f)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return FromReports(reports), nil
}

// Driver opens gcovr reports as databases.
type Driver struct{}

// NewDriver returns a gcovr report driver.
func NewDriver() *Driver {
	return &Driver{}
}

func (*Driver) Init() error { return nil }
func (*Driver) End() error  { return nil }

// Open implements vdb.Driver.
func (*Driver) Open(path string) (vdb.Database, error) {
	db, err := Load(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
