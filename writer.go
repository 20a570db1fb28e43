package rabincdc

// SegmentFunc receives a complete segment. final is set for the last segment
// of a stream. Returning a non-nil error refuses the segment: the Writer
// stops and the segment is offered again on the next Write.
type SegmentFunc func(segment []byte, final bool) error

// Writer drives a Scanner over caller-owned buffers and hands every
// complete segment to a SegmentFunc as one contiguous slice.
//
// Write reports how many leading bytes of buf were delivered. The caller
// keeps the rest and passes it, followed by any new data, as the start of the
// next buffer. Bytes that were already scanned are not scanned again.
type Writer struct {
	s *Scanner

	pending       int  // Scanned but undelivered bytes at the front of the next buffer
	deferred      int  // Length of a refused segment at the front of the next buffer
	deferredFinal bool // Whether the refused segment was the final one
}

// NewWriter creates a new Writer with the given options.
func NewWriter(opts ...Option) (*Writer, error) {
	s, err := NewScanner(opts...)
	if err != nil {
		return nil, err
	}

	return &Writer{s: s}, nil
}

// Write scans buf and calls fn for every segment completed in it. When eof is
// set the trailing partial segment, if any, is delivered as final and the
// Writer is reset for a new stream.
//
// It returns the number of bytes of buf that were delivered. If fn refuses a
// segment, Write returns fn's error together with the bytes delivered before
// that segment; calling Write again with buf[written:] delivers the same
// segment first.
//
// An empty buf without eof, a nil fn, or a buf shorter than the bytes left
// over from the previous call, returns ErrInvalidArgument.
func (w *Writer) Write(buf []byte, eof bool, fn SegmentFunc) (written int, err error) {
	if fn == nil || (len(buf) == 0 && !eof) || len(buf) < w.pending {
		return 0, ErrInvalidArgument
	}

	if w.deferred > 0 {
		if err := fn(buf[:w.deferred], w.deferredFinal); err != nil {
			return 0, err
		}

		written = w.deferred
		w.pending -= w.deferred
		w.deferred = 0

		if w.deferredFinal {
			w.Reset()

			return written, nil
		}
	}

	pos := written + w.pending
	for pos < len(buf) {
		n, found, _ := w.s.NextSegment(buf[pos:])
		pos += n

		if !found {
			break
		}

		final := eof && pos == len(buf)
		if err := fn(buf[written:pos], final); err != nil {
			w.refuse(pos-written, final)

			return written, err
		}

		written = pos
	}

	w.pending = pos - written

	if eof {
		if w.pending > 0 {
			if err := fn(buf[written:pos], true); err != nil {
				w.refuse(w.pending, true)

				return written, err
			}

			written = pos
		}

		w.Reset()
	}

	return written, nil
}

func (w *Writer) refuse(n int, final bool) {
	w.pending = n
	w.deferred = n
	w.deferredFinal = final
}

// Reset discards all state to start a new stream.
func (w *Writer) Reset() {
	w.s.Reset()
	w.pending = 0
	w.deferred = 0
	w.deferredFinal = false
}

// Pending returns the number of bytes the next buffer must start with.
func (w *Writer) Pending() int {
	return w.pending
}

// Scanner returns the underlying Scanner.
func (w *Writer) Scanner() *Scanner {
	return w.s
}
