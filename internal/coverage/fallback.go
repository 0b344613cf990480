package coverage

import "math/rand"

// fallbackHitPercent is the chance a byte inside the range is rewritten.
const fallbackHitPercent = 20

// Randomizer produces a stand-in feedback signal when no coverage database
// is available. It is not a simulation of coverage.
type Randomizer struct {
	rng *rand.Rand
}

// NewRandomizer creates a randomizer with a fixed seed.
func NewRandomizer(seed int64) *Randomizer {
	return &Randomizer{rng: rand.New(rand.NewSource(seed))}
}

// Randomize picks start and end in [0, len(buf)) and rewrites each byte of
// buf[start:end] with a random value with a 20% chance. When end <= start no
// byte is touched. Bytes outside the range are never modified.
func (r *Randomizer) Randomize(buf []byte) (start, end int) {
	size := len(buf)
	if size == 0 {
		return 0, 0
	}

	start = r.rng.Intn(size)
	end = (r.rng.Intn(size) + start) % size

	for i := start; i < end; i++ {
		if r.rng.Intn(100) < fallbackHitPercent {
			buf[i] = byte(r.rng.Intn(256))
		}
	}
	return start, end
}
