//go:build !npi

package npi

import "github.com/zjy-dev/covfeed/internal/vdb"

// Available reports whether NPI support is compiled in.
func Available() bool { return false }

// NewDriver returns ErrUnavailable in builds without the npi tag.
func NewDriver() (vdb.Driver, error) {
	return nil, ErrUnavailable
}
