// Package rabincdc provides content-defined chunking (CDC) driven by a Rabin
// polynomial rolling fingerprint.
//
// # Overview
//
// Content-defined chunking splits a stream into variable-size blocks whose
// boundaries depend on the bytes around them rather than on fixed offsets.
// Inserting or deleting bytes in one region of a stream therefore only moves
// the boundaries near the edit, which is what deduplicating storage and
// backup systems rely on.
//
// The package offers:
//   - Window: an O(1) per byte Rabin fingerprint over the last N bytes
//   - Chunker: a pull API that reads from an io.Reader and returns one Block per call
//   - Scanner: a push API over caller-owned byte ranges, state carried across calls
//   - Writer: a push API that hands complete segments to a callback, with backpressure
//
// # Quick Start
//
// Pull API:
//
//	chunker, _ := rabincdc.NewChunker(reader, rabincdc.WithPolynomial(rabincdc.LBFSPolynomial))
//	for {
//	    block, err := chunker.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    // Process block.Data before the next call
//	}
//
// Push API:
//
//	w, _ := rabincdc.NewWriter(rabincdc.WithPolynomial(rabincdc.LBFSPolynomial))
//	written, err := w.Write(buf, true, func(seg []byte, final bool) error {
//	    // Process seg
//	    return nil
//	})
//
// # Algorithm
//
// The fingerprint is the window contents, read as a polynomial over GF(2),
// reduced modulo an irreducible polynomial. Two 256 entry tables built from
// the polynomial and the window size let each byte be appended and the
// oldest byte removed with a shift, two lookups and two XORs.
//
// A block ends when it reaches the maximum size, or when it is at least the
// minimum size and the low floor(log2(avg)) bits of the fingerprint are all
// set. When the minimum size is above 512 bytes and the window is at most 256
// bytes, all but the last 256 bytes before the minimum are counted without
// being hashed; the window is refilled before the first boundary test, so
// this changes throughput only.
//
// # Interoperability
//
// There is no default polynomial. Two chunkers produce the same boundaries
// only if they use the same polynomial, window size and block sizes.
// Pol.Irreducible and RandomPolynomial help choose a polynomial.
//
// # Thread Safety
//
// Chunker, Scanner, Writer and Window are not safe for concurrent use.
// Use one instance per goroutine; ChunkerPool and ScannerPool recycle them.
package rabincdc
