// Package npi binds the feedback engine to the Verdi NPI coverage library.
//
// The binding needs cgo and the vendor headers and is only compiled with the
// "npi" build tag:
//
//	CGO_CFLAGS="-I$VERDI_HOME/share/NPI/inc" \
//	CGO_LDFLAGS="-L$VERDI_HOME/share/NPI/lib/linux64" \
//	go build -tags npi ./cmd/covfeed
//
// Without the tag NewDriver returns ErrUnavailable.
package npi

import "errors"

// ErrUnavailable is returned when the binary was built without NPI support.
var ErrUnavailable = errors.New("NPI support not compiled in (rebuild with -tags npi)")
