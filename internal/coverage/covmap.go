package coverage

import (
	"errors"
	"fmt"
	"strings"
)

// HeaderWords is the number of leading map words holding the
// (covered, coverable) totals.
const HeaderWords = 2

const wordBits = 32

// ErrCapacityMismatch is returned when a fill runs past the end of the map.
// It means the map was not sized by a matching Size call and must be treated
// as a programming error.
var ErrCapacityMismatch = errors.New("coverage map smaller than sized capacity")

// Mode selects how blocks are encoded into the map.
type Mode int

const (
	// Tally writes one word per block holding its covered count.
	Tally Mode = iota
	// BitPacked writes, per block, covered ones followed by
	// coverable-covered zeros into a bit stream, 32 bits per word, LSB first.
	BitPacked
)

func (m Mode) String() string {
	switch m {
	case Tally:
		return "tally"
	case BitPacked:
		return "bitpacked"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tally", "count", "counts":
		return Tally, nil
	case "bitpacked", "bit-packed", "bits", "bitmap":
		return BitPacked, nil
	default:
		return Tally, fmt.Errorf("unknown encoding mode %q (want tally or bitpacked)", s)
	}
}

// Totals are the running sums of one traversal.
type Totals struct {
	Blocks    int
	Covered   int
	Coverable int
}

// CoverageMap is the write cursor over a feedback map. With no words it only
// accumulates totals, which is how the sizing pass runs.
type CoverageMap struct {
	words  []uint32
	mode   Mode
	word   int
	bit    int
	totals Totals
}

func newSizingMap(mode Mode) *CoverageMap {
	return &CoverageMap{mode: mode}
}

func newFillMap(words []uint32, mode Mode) *CoverageMap {
	return &CoverageMap{words: words, mode: mode, word: HeaderWords}
}

// Totals returns the sums recorded so far.
func (m *CoverageMap) Totals() Totals {
	return m.totals
}

// Cursor returns the current word and bit position.
func (m *CoverageMap) Cursor() (word, bit int) {
	return m.word, m.bit
}

func (m *CoverageMap) record(c BlockCount) error {
	m.totals.Blocks++
	m.totals.Covered += c.Covered
	m.totals.Coverable += c.Coverable

	if m.words == nil {
		return nil
	}

	switch m.mode {
	case BitPacked:
		if err := m.writeRun(c.Covered, true); err != nil {
			return err
		}
		return m.writeRun(c.Coverable-c.Covered, false)
	default:
		if m.word >= len(m.words) {
			return fmt.Errorf("%w: block %d needs word %d of %d",
				ErrCapacityMismatch, m.totals.Blocks, m.word, len(m.words))
		}
		m.words[m.word] = uint32(c.Covered)
		m.word++
		return nil
	}
}

// writeRun sets (or clears) n consecutive bits at the bit cursor.
func (m *CoverageMap) writeRun(n int, set bool) error {
	for n > 0 {
		if m.word >= len(m.words) {
			return fmt.Errorf("%w: bit cursor at word %d of %d",
				ErrCapacityMismatch, m.word, len(m.words))
		}

		span := wordBits - m.bit
		if n < span {
			span = n
		}
		mask := uint32((uint64(1)<<uint(span))-1) << uint(m.bit)
		if set {
			m.words[m.word] |= mask
		} else {
			m.words[m.word] &^= mask
		}

		n -= span
		m.bit += span
		if m.bit == wordBits {
			m.bit = 0
			m.word++
		}
	}
	return nil
}

// finish writes the header.
func (m *CoverageMap) finish() error {
	if len(m.words) < HeaderWords {
		return fmt.Errorf("%w: %d words cannot hold the header", ErrCapacityMismatch, len(m.words))
	}
	m.words[0] = uint32(m.totals.Covered)
	m.words[1] = uint32(m.totals.Coverable)
	return nil
}

// ReadHeader returns the (covered, coverable) header of a filled map.
func ReadHeader(words []uint32) (covered, coverable uint32, err error) {
	if len(words) < HeaderWords {
		return 0, 0, fmt.Errorf("map of %d words has no header", len(words))
	}
	return words[0], words[1], nil
}
