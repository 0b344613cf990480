package memdb

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

// SnapshotFileName is looked up when a snapshot path names a directory.
const SnapshotFileName = "snapshot.yaml"

// snapshotFile is the YAML layout of a coverage snapshot:
//
//	instances:
//	  - name: tb
//	    children:
//	      - name: dut
//	        metrics:
//	          line:
//	            - {id: b0, coverable: 8}
//	tests:
//	  - name: smoke
//	    hits:
//	      "tb.dut:b0": [0, 1, 2]
type snapshotFile struct {
	Instances []instanceSpec `yaml:"instances"`
	Tests     []testSpec     `yaml:"tests"`
}

type instanceSpec struct {
	Name     string                 `yaml:"name"`
	Metrics  map[string][]blockSpec `yaml:"metrics"`
	Children []instanceSpec         `yaml:"children"`
}

type blockSpec struct {
	ID        string `yaml:"id"`
	Coverable int    `yaml:"coverable"`
}

type testSpec struct {
	Name string            `yaml:"name"`
	Hits map[string][]uint `yaml:"hits"`
}

// Load reads a YAML snapshot. If path is a directory, SnapshotFileName inside
// it is read instead.
func Load(path string) (*Database, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, SnapshotFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	db, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot %s: %w", path, err)
	}
	return db, nil
}

// Parse builds a database from YAML snapshot data.
func Parse(data []byte) (*Database, error) {
	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	db := New()
	for _, spec := range file.Instances {
		if err := addInstance(db.root, spec); err != nil {
			return nil, err
		}
	}

	for _, spec := range file.Tests {
		t := db.AddTest(spec.Name)
		for key, points := range spec.Hits {
			b, ok := db.Block(key)
			if !ok {
				return nil, fmt.Errorf("test %q hits unknown block %q", spec.Name, key)
			}
			for _, p := range points {
				if p >= uint(b.coverable) {
					return nil, fmt.Errorf("test %q: point %d out of range for block %q (coverable %d)",
						spec.Name, p, key, b.coverable)
				}
			}
			t.Hit(b, points...)
		}
	}

	return db, nil
}

func addInstance(parent *Instance, spec instanceSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("instance under %q has no name", parent.full)
	}
	inst := parent.AddChild(spec.Name)

	for metricName, blocks := range spec.Metrics {
		m, err := vdb.ParseMetricType(metricName)
		if err != nil {
			return fmt.Errorf("instance %q: %w", inst.full, err)
		}
		for _, b := range blocks {
			if b.Coverable < 0 {
				return fmt.Errorf("block %s:%s has negative coverable count", inst.full, b.ID)
			}
			if _, dup := inst.db.blocks[inst.full+":"+b.ID]; dup {
				return fmt.Errorf("duplicate block %s:%s", inst.full, b.ID)
			}
			inst.AddBlock(m, b.ID, b.Coverable)
		}
	}

	for _, child := range spec.Children {
		if err := addInstance(inst, child); err != nil {
			return err
		}
	}
	return nil
}
