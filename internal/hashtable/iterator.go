package hashtable

// Iterator walks a single bucket's primary region, then follows its
// overflow chain, yielding one tuple's bytes per Next() call. Correctly
// handles a chain whose tail link has zero used bytes (the "empty tail
// chunk" case called out in original_source/util/hashtable.h).
type Iterator struct {
	bucksize  uint32
	tuplesize uint32

	cur      []byte // current link's full bucket bytes (header+payload)
	overflow []*overflowView
	curLink  int // -1 = primary region, >=0 = index into overflow

	offsetWithinLink uint32
	usedInLink       uint32

	tupleOffset int // byte offset of the last yielded tuple within cur's payload, or -1
}

type overflowView struct {
	data []byte
}

// CreateIterator constructs an Iterator bound to this table's bucket/tuple
// sizing. Call PlaceIterator to position it over a specific bucket.
func (t *Table) CreateIterator() *Iterator {
	return &Iterator{bucksize: t.bucksize, tuplesize: t.tuplesize}
}

// PlaceIterator positions it over bucket index i, ready for Next() calls.
func (t *Table) PlaceIterator(it *Iterator, i uint32) {
	buf := t.bucketSlice(i)
	hv := bucketHeaderView{hdr: buf[:bucketHeaderSize]}

	it.curLink = -1
	it.cur = buf
	it.usedInLink = hv.used()
	it.offsetWithinLink = 0
	it.tupleOffset = -1

	it.overflow = it.overflow[:0]
	for _, ov := range t.overflow[i] {
		it.overflow = append(it.overflow, &overflowView{data: ov.Data()})
	}
}

// Next advances the iterator to the next tuple and reports whether one was
// found.
func (it *Iterator) Next() bool {
	for {
		if it.offsetWithinLink+it.tuplesize <= it.usedInLink {
			it.tupleOffset = int(it.offsetWithinLink)
			it.offsetWithinLink += it.tuplesize
			return true
		}

		// Current link exhausted; advance to the next overflow link, if
		// any. A link with usedInLink == 0 (the empty tail chunk) simply
		// yields no tuples and we continue to the link after it, if any.
		it.curLink++
		if it.curLink >= len(it.overflow) {
			return false
		}
		ov := it.overflow[it.curLink]
		hv := bucketHeaderView{hdr: ov.data[:bucketHeaderSize]}
		it.cur = ov.data
		it.usedInLink = hv.used()
		it.offsetWithinLink = 0
	}
}

// Tuple returns the payload bytes of the tuple the most recent Next() call
// positioned the iterator over.
func (it *Iterator) Tuple() []byte {
	payload := it.cur[bucketHeaderSize:]
	return payload[it.tupleOffset : it.tupleOffset+int(it.tuplesize)]
}
