package rabincdc

import "go.uber.org/zap"

// engine couples a rolling Window with the block-size policy. Chunker and
// Scanner are thin drivers around it that differ only in who owns the bytes.
type engine struct {
	win     Window
	mask    uint64
	minSize int
	maxSize int
	skip    int
	log     *zap.Logger
}

func newEngine(cfg *config) engine {
	return engine{
		win:     newWindow(newTables(cfg.pol, cfg.windowSize), cfg.windowSize),
		mask:    cfg.mask(),
		minSize: int(cfg.minSize),
		maxSize: int(cfg.maxSize),
		skip:    cfg.skip(),
		log:     cfg.logger,
	}
}

// scan slides bytes of data into the window until a boundary is found or
// data is exhausted. length is the size of the block so far. It returns the
// number of bytes consumed and whether the last of them ends a block.
//
// A block ends when it reaches maxSize, or when it is at least minSize long
// and the low fingerprint bits are all set. Testing for all ones instead of
// all zeros keeps long runs of zero bytes from producing short blocks.
func (e *engine) scan(data []byte, length int) (int, bool) {
	mask := e.mask
	minSize := e.minSize
	maxSize := e.maxSize
	w := &e.win

	for i, b := range data {
		fp := w.Slide(b)
		length++

		if length == maxSize || (length >= minSize && fp&mask == mask) {
			return i + 1, true
		}
	}

	return len(data), false
}

// Scanner finds segment boundaries in caller-owned byte ranges. The segment
// length, the window and the fingerprint carry over between calls, so a
// stream may be fed in fragments of any size without copying.
//
// For a convenient streaming API over an io.Reader, use Chunker instead.
type Scanner struct {
	eng     engine
	segSize int
}

// NewScanner creates a new Scanner with the given options.
func NewScanner(opts ...Option) (*Scanner, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Scanner{eng: newEngine(&cfg)}, nil
}

// NextSegment scans buf for the end of the current segment.
// It returns:
//   - n: the number of bytes of buf consumed; on a boundary, the segment ends at buf[n]
//   - found: true if a boundary was found
//   - err: ErrInvalidArgument if buf is empty
//
// When found is false all of buf belongs to the current segment and the next
// call continues it. When found is true the next call starts a new segment
// at buf[n:].
func (s *Scanner) NextSegment(buf []byte) (n int, found bool, err error) {
	if len(buf) == 0 {
		return 0, false, ErrInvalidArgument
	}

	// Count the early part of the segment without hashing it.
	if s.segSize < s.eng.skip {
		n = min(s.eng.skip-s.segSize, len(buf))
		s.segSize += n

		if n == len(buf) {
			return n, false, nil
		}
	}

	m, found := s.eng.scan(buf[n:], s.segSize)
	if found {
		s.segSize = 0
	} else {
		s.segSize += m
	}

	return n + m, found, nil
}

// Reset clears all rolling state to start a new stream.
func (s *Scanner) Reset() {
	s.eng.win.Reset()
	s.segSize = 0
}

// SegmentSize returns the number of bytes in the segment scanned so far.
func (s *Scanner) SegmentSize() int {
	return s.segSize
}

// Fingerprint returns the current rolling fingerprint.
func (s *Scanner) Fingerprint() uint64 {
	return s.eng.win.Sum64()
}

// MinSize returns the minimum segment size.
func (s *Scanner) MinSize() int {
	return s.eng.minSize
}

// MaxSize returns the maximum segment size.
func (s *Scanner) MaxSize() int {
	return s.eng.maxSize
}
