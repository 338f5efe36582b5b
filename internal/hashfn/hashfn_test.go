package hashfn

import (
	"encoding/binary"
	"math/rand"
	"testing"
)

func le64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func TestModuloBucketingBounds(t *testing.T) {
	h, err := NewModuloValueHasher(1024)
	if err != nil {
		t.Fatalf("NewModuloValueHasher: %v", err)
	}
	if h.Buckets() != 1024 {
		t.Fatalf("Buckets() = %d, want 1024", h.Buckets())
	}

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20000; i++ {
		x := int64(r.Uint64())
		got := h.Hash(le64(x))
		if got >= h.Buckets() {
			t.Fatalf("Hash(%d) = %d, out of bounds [0,%d)", x, got, h.Buckets())
		}
	}
}

func TestAlwaysZero(t *testing.T) {
	h := AlwaysZeroHasher{}
	if h.Buckets() != 1 {
		t.Fatalf("Buckets() = %d, want 1", h.Buckets())
	}
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 20000; i++ {
		x := int64(r.Uint64())
		if got := h.Hash(le64(x)); got != 0 {
			t.Fatalf("Hash(%d) = %d, want 0", x, got)
		}
	}
}

func TestExactRangeMonotonicity(t *testing.T) {
	const buckets = 80
	min, max := int64(0), int64(100000)
	h, err := NewExactRangeValueHasher(min, max, buckets)
	if err != nil {
		t.Fatalf("NewExactRangeValueHasher: %v", err)
	}

	if h.Buckets() != buckets {
		t.Fatalf("Buckets() = %d, want %d", h.Buckets(), buckets)
	}
	if got := h.Hash(le64(max)); got > buckets-1 {
		t.Fatalf("Hash(max) = %d, want <= %d", got, buckets-1)
	}

	width := h.bucketWidth()
	for b := int64(1); b < buckets; b++ {
		boundary := min + b*width
		lower := h.Hash(le64(boundary))
		upper := h.Hash(le64(boundary - 1))
		if lower != uint32(b) {
			// Rounding at the final bucket can legitimately saturate; only
			// assert strictly within the table.
			if b < buckets-1 {
				t.Errorf("hash(minimumforbucket(%d))=%d, want %d", b, lower, b)
			}
		}
		if upper != uint32(b-1) {
			if b < buckets-1 {
				t.Errorf("hash(minimumforbucket(%d)-1)=%d, want %d", b, upper, b-1)
			}
		}
	}
}

func TestParameterizedModuloGenerateIsDisjointAndCovers(t *testing.T) {
	h, err := NewParameterizedModuloValueHasher(0, 256, 0) // k = 8
	if err != nil {
		t.Fatalf("NewParameterizedModuloValueHasher: %v", err)
	}
	parts := h.Generate(4)

	var union uint64
	for _, p := range parts {
		m := p.mask()
		if union&m != 0 {
			t.Fatalf("masks overlap: union=%x new=%x", union, m)
		}
		union |= m
	}
	if union != h.mask() {
		t.Fatalf("union of masks = %x, want %x", union, h.mask())
	}
}

func TestByteHasherWithinBounds(t *testing.T) {
	h, err := NewByteHasher(64)
	if err != nil {
		t.Fatalf("NewByteHasher: %v", err)
	}
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 5000; i++ {
		buf := make([]byte, 1+r.Intn(32))
		r.Read(buf)
		if got := h.Hash(buf); got >= h.Buckets() {
			t.Fatalf("Hash(%x) = %d, out of bounds [0,%d)", buf, got, h.Buckets())
		}
	}
}

func TestGetLogarithmRoundsToNextPowerOfTwo(t *testing.T) {
	cases := map[uint32]uint32{
		0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 1000: 10, 1024: 10, 1025: 11,
	}
	for in, want := range cases {
		if got := getLogarithm(in); got != want {
			t.Errorf("getLogarithm(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestZeroBucketsRejected(t *testing.T) {
	if _, err := NewModuloValueHasher(0); err == nil {
		t.Fatal("NewModuloValueHasher(0): expected error, got nil")
	}
	if _, err := NewByteHasher(0); err == nil {
		t.Fatal("NewByteHasher(0): expected error, got nil")
	}
	if _, err := NewExactRangeValueHasher(0, 100, 0); err == nil {
		t.Fatal("NewExactRangeValueHasher(..., 0): expected error, got nil")
	}
	if _, err := NewWillisValueHasher(0); err == nil {
		t.Fatal("NewWillisValueHasher(0): expected error, got nil")
	}
}

func TestTpchQ1MagicByteHasherReportsFourBuckets(t *testing.T) {
	h := TpchQ1MagicByteHasher{}
	if h.Buckets() != 4 {
		t.Fatalf("Buckets() = %d, want 4", h.Buckets())
	}
	for v := 0; v < 256; v++ {
		got := h.Hash([]byte{byte(v)})
		want := uint32((((v >> 4) | (v >> 16)) & 0x1) | ((v >> 1) & 0x2))
		if got != want {
			t.Errorf("Hash(%#x) = %d, want %d", v, got, want)
		}
		if got >= h.Buckets() {
			t.Errorf("Hash(%#x) = %d, out of bounds [0,%d)", v, got, h.Buckets())
		}
	}
}

func TestTpchMagicValueHasherFormula(t *testing.T) {
	h, err := NewTpchMagicValueHasher(8)
	if err != nil {
		t.Fatalf("NewTpchMagicValueHasher: %v", err)
	}
	r := rand.New(rand.NewSource(4))
	for i := 0; i < 2000; i++ {
		x := int64(r.Uint32())
		want := uint32((((x >> 2) &^ 7) | (x & 7)) & (int64(h.Buckets()) - 1))
		if got := h.Hash(le64(x)); got != want {
			t.Errorf("Hash(%d) = %d, want %d", x, got, want)
		}
	}
}

func TestWillisValueHasherMixesRatherThanTruncates(t *testing.T) {
	h, err := NewWillisValueHasher(1024)
	if err != nil {
		t.Fatalf("NewWillisValueHasher: %v", err)
	}
	// A murmur3-fmix64-style mixer and the Willis mixer diverge on most
	// inputs; confirm the hasher isn't just the raw low bits of x, which a
	// masking-only bug would produce.
	if got := h.Hash(le64(1)); got == 1 {
		t.Errorf("Hash(1) = %d, suspiciously equal to the raw input's low bits", got)
	}
	r := rand.New(rand.NewSource(5))
	for i := 0; i < 5000; i++ {
		x := int64(r.Uint64())
		if got := h.Hash(le64(x)); got >= h.Buckets() {
			t.Fatalf("Hash(%d) = %d, out of bounds [0,%d)", x, got, h.Buckets())
		}
	}
}
