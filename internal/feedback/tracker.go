// Package feedback decides whether a feedback map carries new coverage
// against everything seen so far.
package feedback

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/zjy-dev/covfeed/internal/coverage"
)

// Tracker accumulates feedback maps into a history map.
//
// For bit-packed maps a map is interesting when it sets a bit past the header
// that the history does not have; merging ORs the bits. For tally maps a map
// is interesting when any word exceeds the history; merging keeps the
// element-wise maximum. In both modes the history header is recomputed on
// merge.
type Tracker struct {
	mu        sync.Mutex
	mode      coverage.Mode
	history   []uint32
	bestScore float64
}

// NewTracker creates an empty tracker for maps of the given mode.
func NewTracker(mode coverage.Mode) *Tracker {
	return &Tracker{mode: mode}
}

// Mode returns the encoding the tracker compares.
func (t *Tracker) Mode() coverage.Mode {
	return t.mode
}

func (t *Tracker) at(i int) uint32 {
	if i < len(t.history) {
		return t.history[i]
	}
	return 0
}

// HasIncreased reports whether words has coverage the history lacks.
func (t *Tracker) HasIncreased(words []uint32) (bool, error) {
	if len(words) < coverage.HeaderWords {
		return false, fmt.Errorf("feedback map of %d words has no header", len(words))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := coverage.HeaderWords; i < len(words); i++ {
		if t.mode == coverage.BitPacked {
			if words[i]&^t.at(i) != 0 {
				return true, nil
			}
		} else if words[i] > t.at(i) {
			return true, nil
		}
	}
	return false, nil
}

// GetIncrease describes what words adds to the history. Call it before Merge.
func (t *Tracker) GetIncrease(words []uint32) (*coverage.CoverageIncrease, error) {
	if len(words) < coverage.HeaderWords {
		return nil, fmt.Errorf("feedback map of %d words has no header", len(words))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	inc := &coverage.CoverageIncrease{}
	for i := coverage.HeaderWords; i < len(words); i++ {
		old := t.at(i)
		if t.mode == coverage.BitPacked {
			if n := bits.OnesCount32(words[i] &^ old); n > 0 {
				inc.NewWords++
				inc.NewlyCoveredPoints += n
			}
		} else if words[i] > old {
			inc.NewWords++
			inc.NewlyCoveredPoints += int(words[i] - old)
		}
	}
	inc.Summary = fmt.Sprintf("%d new %s points in %d words", inc.NewlyCoveredPoints, t.mode, inc.NewWords)
	return inc, nil
}

// Merge folds words into the history.
func (t *Tracker) Merge(words []uint32) error {
	if len(words) < coverage.HeaderWords {
		return fmt.Errorf("feedback map of %d words has no header", len(words))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) < len(words) {
		grown := make([]uint32, len(words))
		copy(grown, t.history)
		t.history = grown
	}

	var covered uint64
	for i := coverage.HeaderWords; i < len(t.history); i++ {
		if i < len(words) {
			if t.mode == coverage.BitPacked {
				t.history[i] |= words[i]
			} else if words[i] > t.history[i] {
				t.history[i] = words[i]
			}
		}
		if t.mode == coverage.BitPacked {
			covered += uint64(bits.OnesCount32(t.history[i]))
		} else {
			covered += uint64(t.history[i])
		}
	}

	if words[1] > t.history[1] {
		t.history[1] = words[1]
	}
	if covered > uint64(t.history[1]) {
		covered = uint64(t.history[1])
	}
	t.history[0] = uint32(covered)
	return nil
}

// ObserveScore records a score and reports whether it beats the best so far.
func (t *Tracker) ObserveScore(score float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if score > t.bestScore {
		t.bestScore = score
		return true
	}
	return false
}

// BestScore returns the best score observed.
func (t *Tracker) BestScore() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bestScore
}

// GetStats returns the accumulated coverage statistics.
func (t *Tracker) GetStats() (*coverage.CoverageStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := &coverage.CoverageStats{}
	if len(t.history) < coverage.HeaderWords {
		return stats, nil
	}
	stats.CoveredPoints = int(t.history[0])
	stats.TotalPoints = int(t.history[1])
	stats.CoveragePercentage = coverage.Score(stats.CoveredPoints, stats.TotalPoints)
	for _, w := range t.history[coverage.HeaderWords:] {
		if w != 0 {
			stats.ActiveWords++
		}
	}
	return stats, nil
}

// History returns a copy of the history map.
func (t *Tracker) History() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint32(nil), t.history...)
}

// Restore replaces the history, for example when resuming a run.
func (t *Tracker) Restore(history []uint32, bestScore float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append([]uint32(nil), history...)
	t.bestScore = bestScore
}
