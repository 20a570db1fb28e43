package rabincdc

import (
	"bytes"
	"errors"
	"io"
	"iter"

	"go.uber.org/zap"
)

// Block is a content-defined block of a stream.
type Block struct {
	Offset      uint64 // Absolute offset in the stream
	Length      uint32 // Block size in bytes
	Fingerprint uint64 // Rabin fingerprint at the cut (not a content hash)
	Data        []byte // Block data (points into internal buffer unless copied)
}

// Clone returns a copy of b whose Data does not alias any chunker buffer.
func (b Block) Clone() Block {
	b.Data = bytes.Clone(b.Data)

	return b
}

// Chunker splits the data read from a source into blocks, one per call to
// Next. It owns an input buffer of at least twice the maximum block size
// which it refills from the source as blocks are consumed.
//
// Unless WithCopyBlocks is set, Block.Data is a view into that buffer and is
// only valid until the next call to Next or Reset.
type Chunker struct {
	eng engine
	src io.Reader

	buf    []byte // Input buffer, len(buf) is its capacity
	start  int    // Start of the current block in buf
	valid  int    // Number of valid bytes in buf
	length int    // Length of the current block so far
	offset uint64 // Absolute offset of the current block
	err    error  // Sticky io.EOF or *SourceError from the source
	done   bool   // Terminal: err has been returned with no block

	copyBlocks bool
}

// NewChunker creates a new Chunker that reads from src.
func NewChunker(src io.Reader, opts ...Option) (*Chunker, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	c := &Chunker{
		eng:        newEngine(&cfg),
		buf:        make([]byte, cfg.bufferSize),
		copyBlocks: cfg.copyBlocks,
	}
	c.Reset(src)

	return c, nil
}

// Next returns the next block from the stream.
// Returns io.EOF when the stream is exhausted. If the source fails, the
// blocks buffered before the failure are returned first and the failure is
// then reported as a *SourceError. Once Next has returned an error it keeps
// returning it until Reset.
//
// Every block is between the minimum and maximum size except the last one,
// which may be shorter than the minimum.
func (c *Chunker) Next() (Block, error) {
	if c.done {
		return Block{}, c.err
	}

	c.offset += uint64(c.length) //nolint:gosec // G115
	c.start += c.length
	c.length = 0

	if c.eng.skip > 0 && c.valid-c.start > c.eng.minSize+1 {
		c.length = c.eng.skip
	}

	for {
		if c.start+c.length == len(c.buf) {
			c.compact()
		}

		if c.start+c.length == c.valid {
			n := 0
			if c.err == nil {
				n = c.refill()
			}

			if c.err != nil && n == 0 {
				if c.length == 0 {
					c.done = true
					c.eng.log.Debug("source exhausted",
						zap.Uint64("offset", c.offset),
						zap.Error(c.err))

					return Block{}, c.err
				}

				return c.block(), nil
			}
		}

		pos := c.start + c.length
		n, found := c.eng.scan(c.buf[pos:c.valid], c.length)
		c.length += n

		if found {
			return c.block(), nil
		}
	}
}

// All returns an iterator over the remaining blocks of the stream. It stops
// at the end of the stream; a source failure is yielded once as the error of
// a final pair. Blocks follow the same lifetime rules as those from Next.
func (c *Chunker) All() iter.Seq2[Block, error] {
	return func(yield func(Block, error) bool) {
		for {
			block, err := c.Next()
			if errors.Is(err, io.EOF) {
				return
			}

			if !yield(block, err) || err != nil {
				return
			}
		}
	}
}

// compact moves the partial block at the end of the buffer to its front.
func (c *Chunker) compact() {
	copy(c.buf, c.buf[c.start:c.start+c.length])
	c.valid = c.length
	c.start = 0

	c.eng.log.Debug("compacted input buffer",
		zap.Uint64("offset", c.offset),
		zap.Int("carried", c.length))
}

// refill reads into the free tail of the buffer and records io.EOF or a
// read failure in c.err. It returns the number of bytes read.
func (c *Chunker) refill() int {
	base := c.offset - uint64(c.start) //nolint:gosec // G115

	n, err := io.ReadFull(c.src, c.buf[c.valid:])
	c.valid += n

	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.err = io.EOF
	default:
		c.err = &SourceError{Offset: base + uint64(c.valid), Err: err} //nolint:gosec // G115
	}

	c.eng.log.Debug("refilled input buffer",
		zap.Uint64("offset", base+uint64(c.valid-n)), //nolint:gosec // G115
		zap.Int("bytes", n),
		zap.Bool("eof", errors.Is(c.err, io.EOF)))

	return n
}

func (c *Chunker) block() Block {
	data := c.buf[c.start : c.start+c.length]
	if c.copyBlocks {
		data = bytes.Clone(data)
	}

	return Block{
		Offset:      c.offset,
		Length:      uint32(c.length), //nolint:gosec // G115
		Fingerprint: c.eng.win.Sum64(),
		Data:        data,
	}
}

// Reset resets the chunker to start processing a new stream.
// The source is replaced with the provided one, and all state is cleared.
// Blocks returned before Reset must no longer be used unless they were copied.
func (c *Chunker) Reset(src io.Reader) {
	c.src = src
	c.eng.win.Reset()
	c.start = 0
	c.valid = 0
	c.length = 0
	c.offset = 0
	c.err = nil
	c.done = false

	if src == nil {
		c.err = io.EOF
	}
}

// Offset returns the absolute offset of the next block in the stream.
func (c *Chunker) Offset() uint64 {
	return c.offset + uint64(c.length) //nolint:gosec // G115
}

// MinSize returns the minimum block size.
func (c *Chunker) MinSize() int {
	return c.eng.minSize
}

// MaxSize returns the maximum block size.
func (c *Chunker) MaxSize() int {
	return c.eng.maxSize
}
