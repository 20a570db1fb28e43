package rabincdc

import (
	"io"
	"math/bits"

	"github.com/restic/chunker"
)

// Pol is a polynomial over GF(2) stored as a bit vector, where bit i holds the
// coefficient of x^i.
type Pol uint64

// LBFSPolynomial is the degree 63 irreducible polynomial used by LBFS.
// It is provided as a well-known choice; there is no default polynomial.
const LBFSPolynomial Pol = 0xbfe6b8a5bf378d83

// Deg returns the degree of p, or -1 for the zero polynomial.
func (p Pol) Deg() int {
	return bits.Len64(uint64(p)) - 1
}

// Irreducible reports whether p is irreducible over GF(2).
func (p Pol) Irreducible() bool {
	if p.Deg() < 1 {
		return false
	}

	return chunker.Pol(p).Irreducible()
}

// RandomPolynomial derives a random irreducible polynomial of degree 53 from
// the given source of randomness.
func RandomPolynomial(src io.Reader) (Pol, error) {
	p, err := chunker.DerivePolynomial(src)
	if err != nil {
		return 0, err
	}

	return Pol(p), nil
}

// Mod reduces the 128 bit polynomial hi·x^64 + lo modulo d. It panics if d
// is zero.
func Mod(hi, lo uint64, d Pol) Pol {
	if d == 0 {
		panic("rabincdc: division by zero polynomial")
	}

	k := d.Deg()
	// top is d shifted so that its leading term sits at bit 63.
	top := uint64(d) << (63 - k)

	if hi != 0 {
		if hi&(1<<63) != 0 {
			hi ^= top
		}

		for i := 62; i >= 0; i-- {
			if hi&(1<<i) != 0 {
				hi ^= top >> (63 - i)
				lo ^= top << (i + 1)
			}
		}
	}

	for i := 63; i >= k; i-- {
		if lo&(1<<i) != 0 {
			lo ^= top >> (63 - i)
		}
	}

	return Pol(lo)
}

// Mul returns the carryless 128 bit product of x and y as (hi, lo).
func Mul(x, y uint64) (hi, lo uint64) {
	if x&1 != 0 {
		lo = y
	}

	for i := 1; i < 64; i++ {
		if x&(1<<i) != 0 {
			hi ^= y >> (64 - i)
			lo ^= y << i
		}
	}

	return hi, lo
}

// MulMod returns x·y mod d.
func MulMod(x, y uint64, d Pol) Pol {
	hi, lo := Mul(x, y)

	return Mod(hi, lo, d)
}

// tables holds the precomputed lookup tables for one (polynomial, window)
// pair. They are read-only once built.
type tables struct {
	// t[i] reduces the byte i shifted out past the polynomial's degree.
	t [256]uint64
	// u[i] is the contribution of byte i after it has aged window-1 bytes.
	u     [256]uint64
	shift uint
}

func newTables(pol Pol, window int) *tables {
	k := pol.Deg()
	tab := &tables{shift: uint(k - 8)} //nolint:gosec // G115: k >= 8 is validated

	t1 := uint64(Mod(0, 1<<k, pol))
	for i := range tab.t {
		tab.t[i] = uint64(MulMod(uint64(i), t1, pol)) | uint64(i)<<k
	}

	sizeshift := uint64(1)
	for i := 1; i < window; i++ {
		sizeshift = tab.append8(sizeshift, 0)
	}

	for i := range tab.u {
		tab.u[i] = uint64(MulMod(uint64(i), sizeshift, pol))
	}

	return tab
}

// append8 appends the byte b to the fingerprint fp.
func (tab *tables) append8(fp uint64, b byte) uint64 {
	return ((fp << 8) | uint64(b)) ^ tab.t[fp>>tab.shift]
}
