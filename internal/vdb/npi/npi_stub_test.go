//go:build !npi

package npi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDriver_Unavailable(t *testing.T) {
	d, err := NewDriver()
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, Available())
}
