// Package hashfn implements the family of scalar and byte hash functions
// used for hash-table bucketing: AlwaysZero, Modulo, ParameterizedModulo,
// Knuth, Range, ExactRange, Byte (manual FNV-1a fold), and the TPC-H/Willis
// domain-specific mixers, plus the factory that resolves a configuration
// node against a schema.
//
// Grounded verbatim on original_source/hash.h and original_source/hash.cpp
// for every formula and constant.
package hashfn

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/sblanas/pythia-sub001/internal/engineerr"
)

// Hasher computes a bucket id in [0, Buckets()) for a tuple field's raw
// bytes.
type Hasher interface {
	// Hash returns a bucket id for the given field bytes.
	Hash(data []byte) uint32
	// Buckets returns the number of buckets this hasher reports, either
	// the requested count verbatim (ExactRange, AlwaysZero) or the
	// smallest power of two >= the requested count.
	Buckets() uint32
}

// getLogarithm returns the base-2 logarithm of the next power of two >= k,
// matching original_source/hash.cpp's getlogarithm bit-scan exactly
// (getlogarithm(0) and getlogarithm(1) both report 0, matching the
// original's underflow-then-scan behavior for k<=1).
func getLogarithm(k uint32) uint32 {
	if k <= 1 {
		return 0
	}
	k--
	return uint32(bits.Len32(k))
}

// powerOfTwoBuckets rounds buckets up to the next power of two, returning
// both the rounded count and its log2.
func powerOfTwoBuckets(requested uint32) (k uint32, buckets uint32) {
	if requested == 0 {
		requested = 1
	}
	k = getLogarithm(requested)
	return k, uint32(1) << k
}

// base holds the common (k, buckets) pair every power-of-two hasher shares.
type base struct {
	k       uint32
	buckets uint32
}

// newBase builds the (k, buckets) pair for a power-of-two hasher, rejecting
// a zero bucket count rather than silently rounding it up to one, matching
// HashFunction::create's MissingParameterException on buckets==0
// (original_source/hash.cpp:59-67).
func newBase(requestedBuckets uint32) (base, error) {
	if requestedBuckets == 0 {
		return base{}, fmt.Errorf("%w: buckets must be nonzero", engineerr.ErrMissingParameter)
	}
	k, buckets := powerOfTwoBuckets(requestedBuckets)
	return base{k: k, buckets: buckets}, nil
}

func (b base) Buckets() uint32 { return b.buckets }

// --- AlwaysZero -------------------------------------------------------

// AlwaysZeroHasher reports exactly one bucket and always hashes to 0.
type AlwaysZeroHasher struct{}

func (AlwaysZeroHasher) Hash([]byte) uint32 { return 0 }
func (AlwaysZeroHasher) Buckets() uint32    { return 1 }

// --- Modulo ------------------------------------------------------------

// ModuloValueHasher computes x & (2^k - 1) over a little-endian numeric
// field.
type ModuloValueHasher struct {
	base
}

func NewModuloValueHasher(buckets uint32) (*ModuloValueHasher, error) {
	b, err := newBase(buckets)
	if err != nil {
		return nil, err
	}
	return &ModuloValueHasher{base: b}, nil
}

func (h *ModuloValueHasher) Hash(data []byte) uint32 {
	x := readUint(data)
	mask := uint64(h.buckets) - 1
	return uint32(x & mask)
}

// --- ParameterizedModulo -------------------------------------------------

// ParameterizedModuloValueHasher computes
// ((x - offset) & mask) >> skipbits, mask = ((2^k)-1) << skipbits.
type ParameterizedModuloValueHasher struct {
	base
	min      int64
	skipbits uint32
}

func NewParameterizedModuloValueHasher(min int64, buckets uint32, skipbits uint32) (*ParameterizedModuloValueHasher, error) {
	b, err := newBase(buckets)
	if err != nil {
		return nil, err
	}
	return &ParameterizedModuloValueHasher{base: b, min: min, skipbits: skipbits}, nil
}

func (h *ParameterizedModuloValueHasher) mask() uint64 {
	return (uint64(h.buckets) - 1) << h.skipbits
}

func (h *ParameterizedModuloValueHasher) Hash(data []byte) uint32 {
	x := int64(readUint(data))
	v := uint64(x - h.min)
	return uint32((v & h.mask()) >> h.skipbits)
}

// Generate splits this hasher's k significant bits into `passes` disjoint,
// contiguous ranges (each floor(k/passes) bits, the last absorbing the
// remainder), returning one hasher per pass such that the bitwise OR of
// the resulting masks reproduces the original mask and any two distinct
// masks are disjoint -- mirroring
// ParameterizedModuloValueHasher::generate(passes) exactly.
func (h *ParameterizedModuloValueHasher) Generate(passes uint32) []*ParameterizedModuloValueHasher {
	if passes == 0 {
		passes = 1
	}
	totalBitsSet := h.k
	bitsPerPass := totalBitsSet / passes

	ret := make([]*ParameterizedModuloValueHasher, 0, passes)
	for i := uint32(0); i < passes-1; i++ {
		skip := h.skipbits + totalBitsSet - ((i + 1) * bitsPerPass)
		// 1<<bitsPerPass is always >= 1, so this never hits the buckets==0
		// validation error.
		part, _ := NewParameterizedModuloValueHasher(h.min, uint32(1)<<bitsPerPass, skip)
		ret = append(ret, part)
	}

	lastBitsPerPass := totalBitsSet - ((passes - 1) * bitsPerPass)
	last, _ := NewParameterizedModuloValueHasher(h.min, uint32(1)<<lastBitsPerPass, h.skipbits)
	ret = append(ret, last)

	return ret
}

// --- Knuth ---------------------------------------------------------------

const knuthMultiplier uint64 = 2654435761

// KnuthValueHasher computes (((x - min) * 2654435761) & mask) >> skipbits.
type KnuthValueHasher struct {
	base
	min      int64
	skipbits uint32
}

func NewKnuthValueHasher(min int64, buckets uint32, skipbits uint32) (*KnuthValueHasher, error) {
	b, err := newBase(buckets)
	if err != nil {
		return nil, err
	}
	return &KnuthValueHasher{base: b, min: min, skipbits: skipbits}, nil
}

func (h *KnuthValueHasher) Hash(data []byte) uint32 {
	x := int64(readUint(data)) - h.min
	mask := (uint64(h.buckets) - 1) << h.skipbits
	v := (uint64(x) * knuthMultiplier) & mask
	return uint32(v >> h.skipbits)
}

// --- Range ---------------------------------------------------------------

// RangeValueHasher partitions [min,max] into 2^k power-of-two buckets via
// (x-min) << k / (max-min+1).
type RangeValueHasher struct {
	base
	min, max int64
}

func NewRangeValueHasher(min, max int64, buckets uint32) (*RangeValueHasher, error) {
	b, err := newBase(buckets)
	if err != nil {
		return nil, err
	}
	return &RangeValueHasher{base: b, min: min, max: max}, nil
}

func (h *RangeValueHasher) Hash(data []byte) uint32 {
	x := int64(readUint(data))
	span := h.max - h.min + 1
	v := ((x - h.min) << h.k) / span
	if v < 0 {
		v = 0
	}
	if uint32(v) >= h.buckets {
		return h.buckets - 1
	}
	return uint32(v)
}

// --- ExactRange ------------------------------------------------------

// ExactRangeValueHasher partitions [min,max] into exactly `buckets` buckets
// (not rounded to a power of two) via (x-min) / ceil((max-min)/buckets).
type ExactRangeValueHasher struct {
	buckets  uint32
	min, max int64
}

func NewExactRangeValueHasher(min, max int64, buckets uint32) (*ExactRangeValueHasher, error) {
	if buckets == 0 {
		return nil, fmt.Errorf("%w: buckets must be nonzero", engineerr.ErrMissingParameter)
	}
	return &ExactRangeValueHasher{buckets: buckets, min: min, max: max}, nil
}

func (h *ExactRangeValueHasher) Buckets() uint32 { return h.buckets }

func (h *ExactRangeValueHasher) bucketWidth() int64 {
	span := h.max - h.min
	return (span + int64(h.buckets) - 1) / int64(h.buckets)
}

func (h *ExactRangeValueHasher) Hash(data []byte) uint32 {
	x := int64(readUint(data))
	width := h.bucketWidth()
	if width <= 0 {
		width = 1
	}
	v := (x - h.min) / width
	if v < 0 {
		v = 0
	}
	if uint32(v) >= h.buckets {
		return h.buckets - 1
	}
	return uint32(v)
}

// --- Byte (FNV-1a 64, folded to k bits) ---------------------------------

// fnv64Offset is the FNV-1a 64-bit offset basis, matching
// ByteHasher::FNV_64_OFFSET.
const fnv64Offset uint64 = 14695981039346656037

// fnvMultiply exploits FNV_PRIME = 2^40 + 0x1B3 via shifts rather than a
// literal multiply, exactly as the original implementation does.
func fnvMultiply(h uint64) uint64 {
	return h + (h << 1) + (h << 4) + (h << 5) + (h << 7) + (h << 8) + (h << 40)
}

// ByteHasher folds an FNV-1a 64-bit hash of arbitrary-length bytes down to
// k significant bits, xor-folding the bits above k into the retained low
// bits rather than simply truncating, matching ByteHasher::hash
// (original_source/hash.h:187).
type ByteHasher struct {
	base
}

func NewByteHasher(buckets uint32) (*ByteHasher, error) {
	b, err := newBase(buckets)
	if err != nil {
		return nil, err
	}
	return &ByteHasher{base: b}, nil
}

func (h *ByteHasher) Hash(data []byte) uint32 {
	hv := fnv64Offset
	for _, b := range data {
		hv ^= uint64(b)
		hv = fnvMultiply(hv)
	}
	mask := uint64(1)<<h.k - 1
	return uint32((hv>>h.k ^ hv) & mask)
}

// --- Domain-specific mixers ---------------------------------------------

// TpchQ1MagicByteHasher is a byte-string hasher tuned for TPC-H Q1's
// l_returnflag/l_linestatus pair; always reports exactly 4 buckets, the
// reshuffled low 2 bits of the field, matching HashFunction::create's
// "tpchq1magic" case (original_source/hash.h:129-141 / hash.cpp:59-67).
type TpchQ1MagicByteHasher struct{}

func (TpchQ1MagicByteHasher) Buckets() uint32 { return 4 }

func (TpchQ1MagicByteHasher) Hash(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	v := uint32(data[0])
	return (((v >> 4) | (v >> 16)) & 0x1) | ((v >> 1) & 0x2)
}

// TpchMagicValueHasher is tuned for TPC-H o_orderkey's known bit structure
// (low 3 bits carry the customer-stride remainder, the rest the dense
// sequence number); explicitly benchmark-illegal outside that key
// distribution. Matches ValueHasher::hash's "tpchorderkey" case
// (original_source/hash.h:390-392).
type TpchMagicValueHasher struct {
	base
}

func NewTpchMagicValueHasher(buckets uint32) (*TpchMagicValueHasher, error) {
	b, err := newBase(buckets)
	if err != nil {
		return nil, err
	}
	return &TpchMagicValueHasher{base: b}, nil
}

func (h *TpchMagicValueHasher) Hash(data []byte) uint32 {
	value := int64(readUint(data))
	mask := int64(h.buckets) - 1
	v := ((value >> 2) &^ 7) | (value & 7)
	return uint32(v & mask)
}

// WillisValueHasher applies the Willis avalanche mixer -- a Wang/Jenkins
// style 64-bit integer hash -- before masking to k bits, matching
// ValueHasher::hash's "willis" case (original_source/hash.h:407-419).
type WillisValueHasher struct {
	base
}

func NewWillisValueHasher(buckets uint32) (*WillisValueHasher, error) {
	b, err := newBase(buckets)
	if err != nil {
		return nil, err
	}
	return &WillisValueHasher{base: b}, nil
}

func (h *WillisValueHasher) Hash(data []byte) uint32 {
	l := int64(readUint(data))
	l = (^l) + (l << 21)
	l ^= int64(uint64(l) >> 24)
	l = (l + (l << 3)) + (l << 8)
	l ^= int64(uint64(l) >> 14)
	l = (l + (l << 2)) + (l << 4)
	l ^= int64(uint64(l) >> 28)
	l += l << 31
	if l < 0 {
		l = -l
	}
	mask := int64(h.buckets) - 1
	return uint32(l & mask)
}

// readUint reads a little-endian unsigned integer from a 4- or 8-byte
// field (the numeric column widths this hasher family operates over).
func readUint(data []byte) uint64 {
	switch len(data) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(data))
	case 8:
		return binary.LittleEndian.Uint64(data)
	default:
		var v uint64
		for i, b := range data {
			if i >= 8 {
				break
			}
			v |= uint64(b) << (8 * i)
		}
		return v
	}
}
