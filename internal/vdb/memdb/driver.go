package memdb

import (
	"fmt"
	"sync"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

// Driver is a vdb.Driver over in-memory databases. It has no native state; it
// only counts Init and End calls so callers can check the lifecycle.
type Driver struct {
	mu    sync.Mutex
	inits int
	ends  int
	open  func(path string) (*Database, error)
}

// NewFileDriver returns a driver that loads YAML snapshots from disk.
func NewFileDriver() *Driver {
	return &Driver{open: Load}
}

// NewStaticDriver returns a driver serving fixed databases by path. Opening a
// database again after it was closed reopens the same instance.
func NewStaticDriver(dbs map[string]*Database) *Driver {
	return &Driver{open: func(path string) (*Database, error) {
		db, ok := dbs[path]
		if !ok {
			return nil, fmt.Errorf("no database at %s", path)
		}
		db.reopen()
		return db, nil
	}}
}

// Init implements vdb.Driver.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits++
	return nil
}

// End implements vdb.Driver.
func (d *Driver) End() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ends++
	return nil
}

// Open implements vdb.Driver.
func (d *Driver) Open(path string) (vdb.Database, error) {
	db, err := d.open(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Inits returns how many times Init was called.
func (d *Driver) Inits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inits
}

// Ends returns how many times End was called.
func (d *Driver) Ends() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ends
}
