package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/covfeed/internal/vdb"
)

func TestRandomizer_OutsideRangeUntouched(t *testing.T) {
	r := NewRandomizer(42)
	buf := make([]byte, 1000)
	for i := range buf {
		buf[i] = byte(i * 7)
	}

	for round := 0; round < 50; round++ {
		before := append([]byte(nil), buf...)
		start, end := r.Randomize(buf)

		require.GreaterOrEqual(t, start, 0)
		require.Less(t, start, len(buf))
		require.GreaterOrEqual(t, end, 0)
		require.Less(t, end, len(buf))

		for i := range buf {
			if i >= start && i < end {
				continue
			}
			require.Equal(t, before[i], buf[i], "round %d byte %d outside [%d,%d)", round, i, start, end)
		}
	}
}

func TestRandomizer_Deterministic(t *testing.T) {
	a := make([]byte, 256)
	b := make([]byte, 256)
	for i := 0; i < 10; i++ {
		sa, ea := NewRandomizer(7).Randomize(a)
		sb, eb := NewRandomizer(7).Randomize(b)
		assert.Equal(t, sa, sb)
		assert.Equal(t, ea, eb)
	}
	assert.Equal(t, a, b)
}

func TestRandomizer_Empty(t *testing.T) {
	start, end := NewRandomizer(1).Randomize(nil)
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
}

func TestRandomSource(t *testing.T) {
	src := NewRandomSource(64, 3)
	enc := NewEncoder(src, Options{Mode: BitPacked, Metric: vdb.MetricLine})

	res, err := enc.Encode()
	require.NoError(t, err)
	assert.Len(t, res.Words, 64)
	assert.Equal(t, Totals{}, res.Totals)
	assert.Equal(t, 0.0, res.Score)

	tally := NewEncoder(src, Options{Mode: Tally})
	res, err = tally.Encode()
	require.NoError(t, err)
	assert.Len(t, res.Words, 64)

	assert.Equal(t, HeaderWords, NewRandomSource(0, 1).words)
}

func TestRandomSource_HeaderStaysZero(t *testing.T) {
	changed := false
	for seed := int64(1); seed <= 20; seed++ {
		words := make([]uint32, 64)
		for i := range words {
			words[i] = 0xffffffff
		}
		src := NewRandomSource(len(words), seed)

		_, err := src.Fill(words, Options{Mode: BitPacked})
		require.NoError(t, err)
		assert.Equal(t, []uint32{0, 0}, words[:HeaderWords], "seed %d", seed)

		for _, w := range words[HeaderWords:] {
			if w != 0xffffffff {
				changed = true
			}
		}
	}
	assert.True(t, changed, "payload never randomized")

	header := NewRandomSource(HeaderWords, 1)
	words := []uint32{7, 9}
	_, err := header.Fill(words, Options{Mode: Tally})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0}, words)
}
