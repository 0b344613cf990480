//go:build npi

package npi

/*
#cgo LDFLAGS: -lNPI -ldl -lpthread -lrt -lz
#include <stdlib.h>
#include "npi.h"
#include "npi_cov.h"

// npi_init expects a regular argv.
static char* cf_argv[] = {(char*)"covfeed", NULL};

static int cf_init(void) { return npi_init(1, cf_argv); }

static npiCovHandle cf_metric(unsigned int t, npiCovHandle inst) {
	return npi_cov_handle((npiCovObjType_e)t, inst);
}

static npiCovHandle cf_iter_tests(npiCovHandle db) { return npi_cov_iter_start(npiCovTest, db); }
static npiCovHandle cf_iter_instances(npiCovHandle scope) { return npi_cov_iter_start(npiCovInstance, scope); }
static npiCovHandle cf_iter_blocks(npiCovHandle metric) { return npi_cov_iter_start(npiCovChild, metric); }

static const char* cf_full_name(npiCovHandle inst) { return npi_cov_get_str(npiCovFullName, inst); }
static const char* cf_test_name(npiCovHandle test) { return npi_cov_get_str(npiCovName, test); }
static int cf_covered(npiCovHandle block, npiCovHandle test) { return npi_cov_get(npiCovCovered, block, test); }
static int cf_coverable(npiCovHandle block) { return npi_cov_get(npiCovCoverable, block, NULL); }
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

// Available reports whether NPI support is compiled in.
func Available() bool { return true }

// NewDriver returns the NPI driver.
func NewDriver() (vdb.Driver, error) {
	return driver{}, nil
}

type driver struct{}

// Init starts NPI. npi_init reports failure with 0.
func (driver) Init() error {
	if C.cf_init() == 0 {
		return errors.New("npi_init failed")
	}
	return nil
}

func (driver) End() error {
	C.npi_end()
	return nil
}

func (driver) Open(path string) (vdb.Database, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	h := C.npi_cov_open(cpath)
	if h == nil {
		return nil, fmt.Errorf("npi_cov_open returned no handle for %s", path)
	}
	return &database{h: h}, nil
}

// collect drains an NPI iterator and stops it.
func collect(iter C.npiCovHandle) []C.npiCovHandle {
	if iter == nil {
		return nil
	}
	var out []C.npiCovHandle
	for {
		h := C.npi_cov_iter_next(iter)
		if h == nil {
			break
		}
		out = append(out, h)
	}
	C.npi_cov_iter_stop(iter)
	return out
}

type database struct {
	h C.npiCovHandle
}

func (db *database) Tests() ([]vdb.Test, error) {
	handles := collect(C.cf_iter_tests(db.h))
	tests := make([]vdb.Test, len(handles))
	for i, h := range handles {
		tests[i] = &test{h: h, name: testName(h, i)}
	}
	return tests, nil
}

// testName is the record name stored in the database, or its enumeration
// index when it has none.
func testName(h C.npiCovHandle, i int) string {
	if s := C.cf_test_name(h); s != nil {
		return C.GoString(s)
	}
	return fmt.Sprintf("test%d", i)
}

func (db *database) MergeTests(a, b vdb.Test) (vdb.Test, error) {
	ta, ok := a.(*test)
	if !ok {
		return nil, fmt.Errorf("foreign test record %T", a)
	}
	tb, ok := b.(*test)
	if !ok {
		return nil, fmt.Errorf("foreign test record %T", b)
	}
	h := C.npi_cov_merge_test(ta.h, tb.h)
	if h == nil {
		return nil, errors.New("npi_cov_merge_test returned no handle")
	}
	return &test{h: h, name: "merged"}, nil
}

// EmptyTest returns a null record. NPI reports zero covered points for it.
func (db *database) EmptyTest() vdb.Test {
	return &test{name: ""}
}

func (db *database) Top() vdb.Instance {
	return &instance{h: db.h}
}

func (db *database) Close() error {
	C.npi_cov_close(db.h)
	db.h = nil
	return nil
}

type test struct {
	h    C.npiCovHandle
	name string
}

func (t *test) Name() string { return t.name }

type instance struct {
	h C.npiCovHandle
}

func (i *instance) FullName() string {
	s := C.cf_full_name(i.h)
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func (i *instance) Children() []vdb.Instance {
	handles := collect(C.cf_iter_instances(i.h))
	children := make([]vdb.Instance, len(handles))
	for k, h := range handles {
		children[k] = &instance{h: h}
	}
	return children
}

func (i *instance) Metric(m vdb.MetricType) (vdb.Metric, error) {
	h := C.cf_metric(C.uint(m), i.h)
	if h == nil {
		return nil, fmt.Errorf("%w: %s handle of %q", vdb.ErrMetricResolution, m, i.FullName())
	}
	return &metric{h: h}, nil
}

type metric struct {
	h C.npiCovHandle
}

func (m *metric) Blocks() ([]vdb.Block, error) {
	iter := C.cf_iter_blocks(m.h)
	if iter == nil {
		return nil, fmt.Errorf("%w: no block iterator", vdb.ErrMetricResolution)
	}
	handles := collect(iter)
	blocks := make([]vdb.Block, len(handles))
	for k, h := range handles {
		blocks[k] = &block{h: h}
	}
	return blocks, nil
}

type block struct {
	h C.npiCovHandle
}

func (b *block) Coverable() int {
	return int(C.cf_coverable(b.h))
}

func (b *block) Covered(t vdb.Test) int {
	nt, ok := t.(*test)
	if !ok {
		return -1
	}
	return int(C.cf_covered(b.h, nt.h))
}
