package rabincdc

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// A source is any io.Reader. Reads report a clean end of input with io.EOF;
// any other error is an I/O failure that ends the stream once the buffered
// data has been chunked. The adapters below cover files, streams and
// preloaded memory.

// FileSource reads from a file opened by OpenFile.
type FileSource struct {
	f *os.File
}

// OpenFile opens the named file for chunking. The caller must Close it.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rabincdc: open source: %w", err)
	}

	return &FileSource{f: f}, nil
}

// Read implements io.Reader.
func (s *FileSource) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

// Name returns the path the file was opened with.
func (s *FileSource) Name() string {
	return s.f.Name()
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

// maxEmptyReads is how many consecutive (0, nil) reads a StreamSource
// tolerates before reporting io.ErrNoProgress.
const maxEmptyReads = 100

// StreamSource adapts an arbitrary io.Reader. The first error it sees,
// io.EOF included, is sticky and returned by every later Read.
type StreamSource struct {
	r   io.Reader
	n   uint64
	err error
}

// NewStreamSource returns a StreamSource reading from r.
func NewStreamSource(r io.Reader) *StreamSource {
	return &StreamSource{r: r}
}

// Read implements io.Reader.
func (s *StreamSource) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	if len(p) == 0 {
		return 0, nil
	}

	for range maxEmptyReads {
		n, err := s.r.Read(p)
		s.n += uint64(n) //nolint:gosec // G115
		s.err = err

		if n > 0 || err != nil {
			return n, err
		}
	}

	s.err = io.ErrNoProgress

	return 0, s.err
}

// BytesRead returns the number of bytes read from the stream so far.
func (s *StreamSource) BytesRead() uint64 {
	return s.n
}

// BufferSource serves a region of memory copied once at construction.
// Reads past the end return zero bytes and io.EOF.
type BufferSource struct {
	data []byte
	off  int
}

// NewBufferSource returns a BufferSource holding a copy of b.
func NewBufferSource(b []byte) *BufferSource {
	return &BufferSource{data: bytes.Clone(b)}
}

// Read implements io.Reader.
func (s *BufferSource) Read(p []byte) (int, error) {
	if s.off >= len(s.data) {
		return 0, io.EOF
	}

	n := copy(p, s.data[s.off:])
	s.off += n

	return n, nil
}

// Len returns the number of unread bytes.
func (s *BufferSource) Len() int {
	return len(s.data) - s.off
}

// SourceError reports an I/O failure of a source, with the stream offset at
// which the read was attempted.
type SourceError struct {
	Offset uint64
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("rabincdc: read source at offset %d: %v", e.Offset, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
