package rabincdc

import "fmt"

// Window maintains a Rabin fingerprint over the last Size() bytes written to
// it. Sliding a byte in costs two table lookups regardless of the window size.
//
// A Window is not safe for concurrent use.
type Window struct {
	tab *tables
	buf []byte
	pos int
	fp  uint64
}

// NewWindow returns a Window of the given size in bytes using pol as the
// modulus. The size must be at least MinWindowSize and pol must have a degree
// between 8 and 63.
func NewWindow(pol Pol, size int) (*Window, error) {
	if size < MinWindowSize {
		return nil, fmt.Errorf("%w: %w: got %d", ErrConfigInvalid, ErrInvalidWindowSize, size)
	}

	if err := validatePolynomial(pol); err != nil {
		return nil, err
	}

	w := newWindow(newTables(pol, size), size)

	return &w, nil
}

func newWindow(tab *tables, size int) Window {
	return Window{
		tab: tab,
		buf: make([]byte, size),
		pos: size - 1,
	}
}

// Slide feeds b into the window, evicting the oldest byte, and returns the
// updated fingerprint.
func (w *Window) Slide(b byte) uint64 {
	w.pos++
	if w.pos == len(w.buf) {
		w.pos = 0
	}

	out := w.buf[w.pos]
	w.buf[w.pos] = b
	w.fp = w.tab.append8(w.fp^w.tab.u[out], b)

	return w.fp
}

// Write slides every byte of p into the window. It never fails.
func (w *Window) Write(p []byte) (int, error) {
	for _, b := range p {
		w.Slide(b)
	}

	return len(p), nil
}

// Sum64 returns the current fingerprint.
func (w *Window) Sum64() uint64 {
	return w.fp
}

// Size returns the window size in bytes.
func (w *Window) Size() int {
	return len(w.buf)
}

// Reset clears the window contents and fingerprint. The lookup tables are
// kept.
func (w *Window) Reset() {
	clear(w.buf)
	w.pos = len(w.buf) - 1
	w.fp = 0
}

// Fingerprint computes, without touching the rolling state, the fingerprint
// of the last Size() bytes of data. After sliding data through a freshly
// reset Window, Sum64 returns the same value.
func (w *Window) Fingerprint(data []byte) uint64 {
	if len(data) > len(w.buf) {
		data = data[len(data)-len(w.buf):]
	}

	var fp uint64
	for _, b := range data {
		fp = w.tab.append8(fp, b)
	}

	return fp
}
