package rabincdc

import (
	"crypto/rand"
	mrand "math/rand/v2"
	"testing"

	"github.com/restic/chunker"
)

// resticPolynomial is the degree 53 irreducible polynomial restic uses in its tests.
const resticPolynomial Pol = 0x3DA3358B4DC173

// refMod reduces hi·x^64 + lo modulo d one bit at a time.
func refMod(hi, lo uint64, d Pol) Pol {
	k := d.Deg()
	for i := 127; i >= k; i-- {
		var set bool
		if i >= 64 {
			set = hi&(1<<(i-64)) != 0
		} else {
			set = lo&(1<<i) != 0
		}

		if !set {
			continue
		}

		s := i - k
		if s >= 64 {
			hi ^= uint64(d) << (s - 64)
		} else {
			lo ^= uint64(d) << s
			hi ^= uint64(d) >> (64 - s)
		}
	}

	return Pol(lo)
}

func TestPolDeg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		p    Pol
		want int
	}{
		{0, -1},
		{1, 0},
		{0x100, 8},
		{resticPolynomial, 53},
		{LBFSPolynomial, 63},
	}

	for _, tt := range tests {
		if got := tt.p.Deg(); got != tt.want {
			t.Errorf("Pol(%#x).Deg() = %d, want %d", uint64(tt.p), got, tt.want)
		}
	}
}

// TestModMatchesRestic checks 64 bit reduction against restic's implementation.
func TestModMatchesRestic(t *testing.T) {
	t.Parallel()

	r := mrand.New(mrand.NewPCG(1, 2))

	for _, d := range []Pol{resticPolynomial, LBFSPolynomial, 0x3f63dfbf84af3b, 0x11b} {
		for i := 0; i < 1000; i++ {
			x := r.Uint64()

			got := Mod(0, x, d)
			want := Pol(chunker.Pol(x).Mod(chunker.Pol(d)))

			if got != want {
				t.Fatalf("Mod(0, %#x, %#x) = %#x, want %#x", x, uint64(d), uint64(got), uint64(want))
			}
		}
	}
}

// TestMod128 checks reduction of full 128 bit values against bitwise long division.
func TestMod128(t *testing.T) {
	t.Parallel()

	r := mrand.New(mrand.NewPCG(3, 4))

	for _, d := range []Pol{resticPolynomial, LBFSPolynomial, 0x11b} {
		for i := 0; i < 1000; i++ {
			hi, lo := r.Uint64(), r.Uint64()

			got := Mod(hi, lo, d)
			if want := refMod(hi, lo, d); got != want {
				t.Fatalf("Mod(%#x, %#x, %#x) = %#x, want %#x", hi, lo, uint64(d), uint64(got), uint64(want))
			}

			if got.Deg() >= d.Deg() {
				t.Fatalf("Mod result %#x not reduced below degree %d", uint64(got), d.Deg())
			}
		}
	}
}

func TestMulMatchesRestic(t *testing.T) {
	t.Parallel()

	r := mrand.New(mrand.NewPCG(5, 6))

	for i := 0; i < 1000; i++ {
		// Keep the product below 64 bits so restic's Mul does not overflow.
		x := r.Uint64() >> 33
		y := r.Uint64() >> 33

		hi, lo := Mul(x, y)
		if hi != 0 {
			t.Fatalf("Mul(%#x, %#x) high word = %#x, want 0", x, y, hi)
		}

		if want := uint64(chunker.Pol(x).Mul(chunker.Pol(y))); lo != want {
			t.Fatalf("Mul(%#x, %#x) = %#x, want %#x", x, y, lo, want)
		}
	}
}

func TestMulWide(t *testing.T) {
	t.Parallel()

	// x^63 · x^63 = x^126
	hi, lo := Mul(1<<63, 1<<63)
	if hi != 1<<62 || lo != 0 {
		t.Errorf("Mul(x^63, x^63) = (%#x, %#x), want (%#x, 0)", hi, lo, uint64(1)<<62)
	}

	// (x + 1)^2 = x^2 + 1 over GF(2)
	if hi, lo := Mul(3, 3); hi != 0 || lo != 5 {
		t.Errorf("Mul(3, 3) = (%#x, %#x), want (0, 0x5)", hi, lo)
	}
}

func TestMulModMatchesRestic(t *testing.T) {
	t.Parallel()

	r := mrand.New(mrand.NewPCG(7, 8))
	d := resticPolynomial

	for i := 0; i < 200; i++ {
		x := uint64(Mod(0, r.Uint64(), d))
		y := uint64(Mod(0, r.Uint64(), d))

		got := MulMod(x, y, d)
		want := Pol(chunker.Pol(x).MulMod(chunker.Pol(y), chunker.Pol(d)))

		if got != want {
			t.Fatalf("MulMod(%#x, %#x) = %#x, want %#x", x, y, uint64(got), uint64(want))
		}
	}
}

func TestModZeroDivisorPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("Mod by zero did not panic")
		}
	}()

	Mod(0, 1, 0)
}

// TestTablesDeterministic verifies that tables are a pure function of their inputs.
func TestTablesDeterministic(t *testing.T) {
	t.Parallel()

	for _, window := range []int{32, 48, 64, 512} {
		a := newTables(resticPolynomial, window)
		b := newTables(resticPolynomial, window)

		if *a != *b {
			t.Errorf("tables for window %d differ between constructions", window)
		}
	}

	if *newTables(resticPolynomial, 32) == *newTables(resticPolynomial, 64) {
		t.Error("tables for different window sizes are identical")
	}

	if *newTables(resticPolynomial, 32) == *newTables(LBFSPolynomial, 32) {
		t.Error("tables for different polynomials are identical")
	}
}

func TestTablesStructure(t *testing.T) {
	t.Parallel()

	pol := resticPolynomial
	k := pol.Deg()
	tab := newTables(pol, 32)

	if tab.shift != uint(k-8) {
		t.Errorf("shift = %d, want %d", tab.shift, k-8)
	}

	if tab.t[0] != 0 || tab.u[0] != 0 {
		t.Errorf("T[0] = %#x, U[0] = %#x, want 0", tab.t[0], tab.u[0])
	}

	for i := range tab.t {
		if got := tab.t[i] >> k; got != uint64(i) {
			t.Fatalf("T[%d] top byte = %#x, want %#x", i, got, i)
		}

		if Pol(tab.u[i]).Deg() >= k {
			t.Fatalf("U[%d] = %#x is not reduced", i, tab.u[i])
		}
	}

	// U[1] is x^(8·(window-1)) mod pol.
	want := Pol(1)
	for i := 0; i < 8*31; i++ {
		want = MulMod(uint64(want), 2, pol)
	}

	if Pol(tab.u[1]) != want {
		t.Errorf("U[1] = %#x, want %#x", tab.u[1], uint64(want))
	}
}

// TestTablesGolden pins the tables for the benchmark polynomial and a 32
// byte window to values produced by the C rabinpoly implementation.
func TestTablesGolden(t *testing.T) {
	t.Parallel()

	tab := newTables(0x3f63dfbf84af3b, 32)

	golden := []struct {
		name      string
		got, want uint64
	}{
		{"T[1]", tab.t[1], 0x3f63dfbf84af3b},
		{"U[1]", tab.u[1], 0x53605fa0d4db9},
		{"T[255]", tab.t[255], 0x1ff04bbf02da6ccd},
		{"U[255]", tab.u[255], 0x1aa3d054981ccb},
	}

	for _, g := range golden {
		if g.got != g.want {
			t.Errorf("%s = %#x, want %#x", g.name, g.got, g.want)
		}
	}
}

func TestIrreducible(t *testing.T) {
	t.Parallel()

	if !resticPolynomial.Irreducible() {
		t.Errorf("%#x should be irreducible", uint64(resticPolynomial))
	}

	// x^20 = x · x^19
	if Pol(1 << 20).Irreducible() {
		t.Error("x^20 should be reducible")
	}

	if Pol(0).Irreducible() || Pol(1).Irreducible() {
		t.Error("constants should not be irreducible")
	}
}

func TestRandomPolynomial(t *testing.T) {
	t.Parallel()

	p, err := RandomPolynomial(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if p.Deg() != 53 {
		t.Errorf("RandomPolynomial degree = %d, want 53", p.Deg())
	}

	if !p.Irreducible() {
		t.Errorf("RandomPolynomial returned reducible %#x", uint64(p))
	}
}
