package rabincdc_test

import (
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/kalbasit/rabincdc"
)

const (
	testMinSize = 2 * 1024
	testAvgSize = 8 * 1024
	testMaxSize = 64 * 1024
)

// testOptions returns small block sizes so tests see many blocks.
func testOptions(extra ...rabincdc.Option) []rabincdc.Option {
	opts := []rabincdc.Option{
		rabincdc.WithPolynomial(rabincdc.LBFSPolynomial),
		rabincdc.WithMinSize(testMinSize),
		rabincdc.WithAvgSize(testAvgSize),
		rabincdc.WithMaxSize(testMaxSize),
	}

	return append(opts, extra...)
}

// randomData returns n pseudo-random bytes that are stable for a given seed.
func randomData(n int, seed byte) []byte {
	var key [32]byte
	key[0] = seed

	data := make([]byte, n)
	_, _ = rand.NewChaCha8(key).Read(data)

	return data
}

// splitmixData returns n bytes from a splitmix64 generator seeded with 1,
// each output word written little endian.
func splitmixData(n int) []byte {
	data := make([]byte, n)
	state := uint64(1)

	for i := 0; i < n; i += 8 {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31

		for j := 0; j < 8 && i+j < n; j++ {
			data[i+j] = byte(z >> (8 * j))
		}
	}

	return data
}

// collectBlocks drains c and returns copies of all blocks.
func collectBlocks(t *testing.T, c *rabincdc.Chunker) []rabincdc.Block {
	t.Helper()

	var blocks []rabincdc.Block

	for {
		block, err := c.Next()
		if errors.Is(err, io.EOF) {
			return blocks
		}

		if err != nil {
			t.Fatal(err)
		}

		blocks = append(blocks, block.Clone())
	}
}

// blockEnds returns the end offset of every block.
func blockEnds(blocks []rabincdc.Block) []uint64 {
	ends := make([]uint64, len(blocks))
	for i, b := range blocks {
		ends[i] = b.Offset + uint64(b.Length)
	}

	return ends
}

// failingReader returns data and then fails with err.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}

	n := copy(p, r.data)
	r.data = r.data[n:]

	return n, nil
}

// oneByteReader returns at most one byte per Read.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}

	if len(p) == 0 {
		return 0, nil
	}

	p[0] = r.data[0]
	r.data = r.data[1:]

	return 1, nil
}
