package hashtable

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/sblanas/pythia-sub001/internal/numaalloc"
	"github.com/sblanas/pythia-sub001/internal/xsync"
)

func newTestAllocator(t *testing.T) *numaalloc.Allocator {
	t.Helper()
	a, err := numaalloc.New(nil, 1)
	if err != nil {
		t.Fatalf("numaalloc.New: %v", err)
	}
	return a
}

func TestInitThenBucketClearZeroesUsage(t *testing.T) {
	alloc := newTestAllocator(t)
	var tab Table
	if err := tab.Init(alloc, 16, 256, 8, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tab.BucketClear(0, 1)

	it := tab.CreateIterator()
	for i := uint32(0); i < tab.GetNumberOfBuckets(); i++ {
		tab.PlaceIterator(it, i)
		if it.Next() {
			t.Fatalf("bucket %d expected empty after bucketclear", i)
		}
	}
}

func TestAtomicAllocateChainYieldsEveryTuple(t *testing.T) {
	alloc := newTestAllocator(t)
	var tab Table
	const tupsize = 8
	if err := tab.Init(alloc, 4, 64, tupsize, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tab.BucketClear(0, 1)

	var lock xsync.SpinLock
	lock.Reset()

	for i := 0; i < 20; i++ {
		if _, err := tab.AtomicAllocate(0, &lock); err != nil {
			t.Fatalf("AtomicAllocate: %v", err)
		}
	}

	it := tab.CreateIterator()
	tab.PlaceIterator(it, 0)
	count := 0
	for it.Next() {
		count++
	}
	if count != 20 {
		t.Fatalf("iterated %d tuples, want 20", count)
	}
}

func TestIterationSingleBucketAllIntegersAppearOnce(t *testing.T) {
	alloc := newTestAllocator(t)
	var tab Table
	const tupsize = 8
	const n = 500
	if err := tab.Init(alloc, 1, uint32(n*tupsize), tupsize, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tab.BucketClear(0, 1)

	r := rand.New(rand.NewSource(42))
	vals := r.Perm(n)

	var lock xsync.SpinLock
	lock.Reset()

	for _, v := range vals {
		slot, err := tab.AtomicAllocate(0, &lock)
		if err != nil {
			t.Fatalf("AtomicAllocate: %v", err)
		}
		binary.LittleEndian.PutUint64(slot, uint64(v))
	}

	seen := make(map[int]bool, n)
	it := tab.CreateIterator()
	tab.PlaceIterator(it, 0)
	for it.Next() {
		v := int(binary.LittleEndian.Uint64(it.Tuple()))
		if seen[v] {
			t.Fatalf("value %d seen twice", v)
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Fatalf("saw %d distinct values, want %d", len(seen), n)
	}
}

func TestOverflowChainsIncrementSpillCounter(t *testing.T) {
	alloc := newTestAllocator(t)
	var tab Table
	const tupsize = 8
	// bucksize holds only 2 tuples; inserting a third must spill.
	if err := tab.Init(alloc, 1, 2*tupsize, tupsize, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tab.BucketClear(0, 1)

	var lock xsync.SpinLock
	lock.Reset()

	for i := 0; i < 5; i++ {
		if _, err := tab.AtomicAllocate(0, &lock); err != nil {
			t.Fatalf("AtomicAllocate: %v", err)
		}
	}

	if tab.StatSpills() == 0 {
		t.Fatal("expected at least one spill after overflowing the primary bucket")
	}

	it := tab.CreateIterator()
	tab.PlaceIterator(it, 0)
	count := 0
	for it.Next() {
		count++
	}
	if count != 5 {
		t.Fatalf("iterated %d tuples across chain, want 5", count)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	alloc := newTestAllocator(t)
	const tupsize = 8
	const n = 64

	var tab Table
	if err := tab.Init(alloc, n, tupsize, tupsize, nil); err != nil { // one tuple per bucket, no overflow
		t.Fatalf("Init: %v", err)
	}
	tab.BucketClear(0, 1)

	var lock xsync.SpinLock
	lock.Reset()
	for i := uint32(0); i < n; i++ {
		slot, err := tab.AtomicAllocate(i, &lock)
		if err != nil {
			t.Fatalf("AtomicAllocate(%d): %v", i, err)
		}
		binary.LittleEndian.PutUint64(slot, uint64(i))
	}

	var buf bytes.Buffer
	if err := tab.Serialize(&buf, 0, false); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	var fresh Table
	if err := fresh.Init(alloc, n, tupsize, tupsize, nil); err != nil {
		t.Fatalf("Init (fresh): %v", err)
	}
	if err := fresh.Deserialize(&buf, 0, false); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	for i := uint32(0); i < n; i++ {
		it := fresh.CreateIterator()
		fresh.PlaceIterator(it, i)
		if !it.Next() {
			t.Fatalf("bucket %d: expected a tuple after deserialize", i)
		}
		v := binary.LittleEndian.Uint64(it.Tuple())
		if v != uint64(i) {
			t.Fatalf("bucket %d: value = %d, want %d", i, v, i)
		}
	}
}

func TestSerializeRejectsNonEmptyOverflow(t *testing.T) {
	alloc := newTestAllocator(t)
	var tab Table
	const tupsize = 8
	if err := tab.Init(alloc, 1, tupsize, tupsize, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tab.BucketClear(0, 1)

	var lock xsync.SpinLock
	lock.Reset()
	// First insert fills the only slot; second spills into overflow.
	if _, err := tab.AtomicAllocate(0, &lock); err != nil {
		t.Fatalf("AtomicAllocate: %v", err)
	}
	if _, err := tab.AtomicAllocate(0, &lock); err != nil {
		t.Fatalf("AtomicAllocate: %v", err)
	}

	var buf bytes.Buffer
	if err := tab.Serialize(&buf, 0, false); err == nil {
		t.Fatal("expected Serialize to reject a table with pending overflow chains")
	}
}
