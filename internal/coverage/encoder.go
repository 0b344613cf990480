package coverage

import (
	"encoding/binary"
	"fmt"

	"github.com/zjy-dev/covfeed/internal/logger"
	"github.com/zjy-dev/covfeed/internal/vdb"
)

// Source is what an Encoder reads coverage from.
type Source interface {
	// Size computes the capacity a Fill with the same options needs.
	Size(opts Options) (Sizing, error)

	// Fill encodes into words and returns the traversal totals.
	Fill(words []uint32, opts Options) (Totals, error)
}

// SessionSource reads one open session. Test records are merged once, on
// first use, and the result (or the failure) is reused by both passes.
type SessionSource struct {
	session  *vdb.Session
	merged   vdb.Test
	mergeErr error
	done     bool
}

// NewSessionSource creates a source over an open session. The caller keeps
// ownership of the session and closes it after the last pass.
func NewSessionSource(session *vdb.Session) *SessionSource {
	return &SessionSource{session: session}
}

func (s *SessionSource) test(db vdb.Database) (vdb.Test, error) {
	if !s.done {
		s.merged, s.mergeErr = MergeTests(db)
		s.done = true
	}
	return s.merged, s.mergeErr
}

// Size implements Source.
func (s *SessionSource) Size(opts Options) (Sizing, error) {
	var sizing Sizing
	err := s.session.Use(func(db vdb.Database) error {
		test, err := s.test(db)
		if err != nil {
			return err
		}
		sizing, err = Size(db, test, opts)
		return err
	})
	return sizing, err
}

// Fill implements Source. On a merge failure words are left untouched.
func (s *SessionSource) Fill(words []uint32, opts Options) (Totals, error) {
	var totals Totals
	err := s.session.Use(func(db vdb.Database) error {
		test, err := s.test(db)
		if err != nil {
			return err
		}
		totals, err = Fill(db, test, words, opts)
		return err
	})
	return totals, err
}

// RandomSource is a fixed-size source that randomizes the map instead of
// reading a database. It reports no totals.
type RandomSource struct {
	words int
	rnd   *Randomizer
}

// NewRandomSource creates a random source producing maps of the given number
// of words (at least HeaderWords).
func NewRandomSource(words int, seed int64) *RandomSource {
	if words < HeaderWords {
		words = HeaderWords
	}
	return &RandomSource{words: words, rnd: NewRandomizer(seed)}
}

// Size implements Source. The sizing yields the fixed capacity in every mode.
func (s *RandomSource) Size(opts Options) (Sizing, error) {
	items := s.words - HeaderWords
	return Sizing{Blocks: items, Coverable: items * wordBits}, nil
}

// Fill implements Source by randomizing the little-endian bytes of the words
// after the header. The header is zeroed, matching the zero totals.
func (s *RandomSource) Fill(words []uint32, opts Options) (Totals, error) {
	header := min(len(words), HeaderWords)
	clear(words[:header])

	payload := words[header:]
	buf := wordsToBytes(payload)
	s.rnd.Randomize(buf)
	for i := range payload {
		payload[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return Totals{}, nil
}

// Encoder runs the size and fill passes against a Source.
type Encoder struct {
	source Source
	opts   Options
}

// NewEncoder creates an encoder.
func NewEncoder(source Source, opts Options) *Encoder {
	return &Encoder{source: source, opts: opts}
}

// Options returns the encoder options.
func (e *Encoder) Options() Options {
	return e.opts
}

// Result is one encoded feedback map.
type Result struct {
	Words  []uint32
	Totals Totals
	Score  float64
}

// Bytes returns the map as little-endian bytes.
func (r *Result) Bytes() []byte {
	return wordsToBytes(r.Words)
}

// Encode sizes the map, allocates exactly that capacity and fills it.
func (e *Encoder) Encode() (*Result, error) {
	sizing, err := e.source.Size(e.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to size coverage map: %w", err)
	}
	n := sizing.Words(e.opts.Mode)
	logger.Debug("Sized %s map: %d blocks, %d coverable, %d words (metric %s, filter %q)",
		e.opts.Mode, sizing.Blocks, sizing.Coverable, n, e.opts.Metric, e.opts.Filter)
	return e.EncodeInto(make([]uint32, n))
}

// EncodeInto fills a caller-provided map.
func (e *Encoder) EncodeInto(words []uint32) (*Result, error) {
	totals, err := e.source.Fill(words, e.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fill coverage map: %w", err)
	}
	res := &Result{
		Words:  words,
		Totals: totals,
		Score:  Score(totals.Covered, totals.Coverable),
	}
	logger.Debug("Filled %s map: covered %d / coverable %d, score %.2f",
		e.opts.Mode, totals.Covered, totals.Coverable, res.Score)
	return res, nil
}

func wordsToBytes(words []uint32) []byte {
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}
