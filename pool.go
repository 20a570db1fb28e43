package rabincdc

import (
	"io"
	"sync"
)

// ChunkerPool is a pool of Chunker instances for reuse in high-throughput scenarios.
// It saves rebuilding lookup tables and reallocating input buffers per stream.
type ChunkerPool struct {
	pool sync.Pool
	opts []Option
}

// NewChunkerPool creates a new ChunkerPool with the given options.
// All chunkers created from this pool will use these options.
func NewChunkerPool(opts ...Option) (*ChunkerPool, error) {
	// Validate options up front so Get only fails on programmer error.
	if _, err := newConfig(opts); err != nil {
		return nil, err
	}

	return &ChunkerPool{
		opts: opts,
	}, nil
}

// Get retrieves a Chunker from the pool, or creates a new one if the pool is empty.
// The chunker is configured with the given source and ready to use.
func (p *ChunkerPool) Get(src io.Reader) (*Chunker, error) {
	if v := p.pool.Get(); v != nil {
		c := v.(*Chunker)
		c.Reset(src)

		return c, nil
	}

	return NewChunker(src, p.opts...)
}

// Put returns a Chunker to the pool for reuse.
// The chunker, and any uncopied block it returned, must not be used afterwards.
func (p *ChunkerPool) Put(c *Chunker) {
	// Clear the source to avoid holding references
	c.Reset(nil)
	p.pool.Put(c)
}

// ScannerPool is a pool of Scanner instances for reuse.
type ScannerPool struct {
	pool sync.Pool
	opts []Option
}

// NewScannerPool creates a new ScannerPool with the given options.
func NewScannerPool(opts ...Option) (*ScannerPool, error) {
	if _, err := newConfig(opts); err != nil {
		return nil, err
	}

	return &ScannerPool{
		opts: opts,
	}, nil
}

// Get retrieves a reset Scanner from the pool, or creates a new one if the pool is empty.
func (p *ScannerPool) Get() (*Scanner, error) {
	if v := p.pool.Get(); v != nil {
		s := v.(*Scanner)
		s.Reset()

		return s, nil
	}

	return NewScanner(p.opts...)
}

// Put returns a Scanner to the pool for reuse.
func (p *ScannerPool) Put(s *Scanner) {
	s.Reset()
	p.pool.Put(s)
}
