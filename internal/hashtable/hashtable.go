// Package hashtable implements the partitioned, chained-overflow,
// spill-tracking hash table shared by join and aggregate operators.
//
// Grounded verbatim on original_source/util/hashtable.h and
// original_source/util/hashtable.cpp for the bucket-header layout,
// partition/index arithmetic, the overflow-chain allocate algorithm, the
// bucketclear shard-range formula, and the iterator's "empty tail chunk"
// case.
package hashtable

import (
	"encoding/binary"
	"fmt"

	"github.com/sblanas/pythia-sub001/internal/numaalloc"
	"github.com/sblanas/pythia-sub001/internal/xsync"
)

// MaxPartitions is the largest number of partitions a Table may have,
// matching MAX_PART in the original.
const MaxPartitions = 4

// bucketHeaderSize is the on-disk/in-memory size of a BucketHeader: a
// spinlock (4 bytes), used-bytes (4 bytes), and a next-bucket pointer,
// represented here as an index into an out-of-line overflow slice rather
// than a raw pointer (8 bytes reserved to keep the layout's arithmetic
// comparable to the original's pointer-sized field).
const bucketHeaderSize = 16

// Table is the partitioned hash table. Bucket i lives in partition
// i & (P-1) at index i >> log2(P).
type Table struct {
	alloc *numaalloc.Allocator

	nbuckets       uint32
	bucksize       uint32
	tuplesize      uint32
	log2partitions uint32

	partitions []*numaalloc.Allocation // primary region per partition
	overflow   [][]*numaalloc.Allocation // overflow buckets chained per-bucket, in link order

	spills uint32
}

// Init allocates the table's partitioned arenas. partitionNodes specifies
// one NUMA node per partition; an empty slice means "a single local
// allocation," matching the original's "if partitions is empty, locally
// allocate a single memory region."
func (t *Table) Init(alloc *numaalloc.Allocator, nbuckets, bucksize, tuplesize uint32, partitionNodes []int) error {
	if len(partitionNodes) == 0 {
		partitionNodes = []int{-1}
	}
	if !isPowerOfTwo(uint32(len(partitionNodes))) {
		return fmt.Errorf("hashtable: partition count %d is not a power of two", len(partitionNodes))
	}
	if len(partitionNodes) > MaxPartitions {
		return fmt.Errorf("hashtable: partition count %d exceeds max %d", len(partitionNodes), MaxPartitions)
	}

	t.alloc = alloc
	t.nbuckets = nbuckets
	t.bucksize = bucksize
	t.tuplesize = tuplesize
	t.log2partitions = log2(uint32(len(partitionNodes)))

	noparts := uint32(1) << t.log2partitions
	t.partitions = make([]*numaalloc.Allocation, noparts)
	t.overflow = make([][]*numaalloc.Allocation, nbuckets)

	bucketsPerPartition := ceilDiv(nbuckets, noparts)
	partSize := int(bucketsPerPartition) * (bucketHeaderSize + int(bucksize))

	for i := uint32(0); i < noparts; i++ {
		a, err := alloc.AllocateOnNode("HTbS", partSize, partitionNodes[i])
		if err != nil {
			return fmt.Errorf("hashtable: allocating partition %d: %w", i, err)
		}
		zero(a.Data())
		t.partitions[i] = a
	}

	return nil
}

func isPowerOfTwo(v uint32) bool { return v != 0 && v&(v-1) == 0 }

func log2(v uint32) uint32 {
	var k uint32
	for (uint32(1) << k) < v {
		k++
	}
	return k
}

func ceilDiv(a, b uint32) uint32 { return (a + b - 1) / b }

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// bucketHeader is a view over a bucket's header bytes: used-bytes is a
// little-endian uint32 at offset 4; bytes [0:4) are reserved and never read
// or written (no lock is kept in the header), and bytes [8:16) are reserved for parity with the original's pointer-sized
// next-bucket field (unused here: overflow chains are tracked out-of-line
// in Table.overflow for memory-safety in Go).
type bucketHeaderView struct {
	hdr []byte
}

func (v bucketHeaderView) used() uint32 {
	return binary.LittleEndian.Uint32(v.hdr[4:8])
}

func (v bucketHeaderView) setUsed(u uint32) {
	binary.LittleEndian.PutUint32(v.hdr[4:8], u)
}

// partitionAndIndex returns the partition and in-partition slot for bucket
// index i, per "bucket index i is stored in partition i mod P at slot i div
// P."
func (t *Table) partitionAndIndex(i uint32) (part uint32, slot uint32) {
	mask := (uint32(1) << t.log2partitions) - 1
	part = i & mask
	slot = i >> t.log2partitions
	return
}

func (t *Table) bucketSlice(i uint32) []byte {
	part, slot := t.partitionAndIndex(i)
	stride := bucketHeaderSize + int(t.bucksize)
	start := int(slot) * stride
	return t.partitions[part].Data()[start : start+stride]
}

func (t *Table) header(i uint32) bucketHeaderView {
	return bucketHeaderView{hdr: t.bucketSlice(i)[:bucketHeaderSize]}
}

func (t *Table) payload(buf []byte) []byte {
	return buf[bucketHeaderSize:]
}

// GetNumberOfBuckets returns the configured bucket count.
func (t *Table) GetNumberOfBuckets() uint32 { return t.nbuckets }

// BucketClear zeros used-bytes and releases overflow chains for bucket
// indices in [shardID*nbuckets/totalShards, (shardID+1)*nbuckets/totalShards),
// mirroring HashTable::bucketclear's shard-range formula exactly. Not
// thread-safe against concurrent operations on the same range.
func (t *Table) BucketClear(shardID, totalShards int) {
	start := uint32((int64(shardID) + 0) * int64(t.nbuckets) / int64(totalShards))
	end := uint32((int64(shardID) + 1) * int64(t.nbuckets) / int64(totalShards))

	for i := start; i < end; i++ {
		t.header(i).setUsed(0)
		t.overflow[i] = nil
	}
}

// Allocate reserves tuplesize bytes in bucket `bucketIdx`'s chain, chaining a
// new NUMA-local overflow bucket if no existing link in the chain has room.
// Not synchronized; callers needing concurrency safety must use
// AtomicAllocate.
func (t *Table) Allocate(bucketIdx uint32) ([]byte, error) {
	hv := t.header(bucketIdx)
	buf := t.bucketSlice(bucketIdx)

	if hv.used()+t.tuplesize <= t.bucksize {
		used := hv.used()
		hv.setUsed(used + t.tuplesize)
		payload := t.payload(buf)
		return payload[used : used+t.tuplesize], nil
	}

	for idx, ov := range t.overflow[bucketIdx] {
		ovHdr := bucketHeaderView{hdr: ov.Data()[:bucketHeaderSize]}
		if ovHdr.used()+t.tuplesize <= t.bucksize {
			used := ovHdr.used()
			ovHdr.setUsed(used + t.tuplesize)
			payload := t.payload(ov.Data())
			return payload[used : used+t.tuplesize], nil
		}
		_ = idx
	}

	// Overflow: allocate a new NUMA-local bucket and chain it.
	xsync.IncrementUint32(&t.spills, 1)

	newBuck, err := t.alloc.AllocateLocal("HTbO", bucketHeaderSize+int(t.bucksize))
	if err != nil {
		return nil, fmt.Errorf("hashtable: overflow allocation: %w", err)
	}
	zero(newBuck.Data())
	newHdr := bucketHeaderView{hdr: newBuck.Data()[:bucketHeaderSize]}
	newHdr.setUsed(t.tuplesize)

	t.overflow[bucketIdx] = append(t.overflow[bucketIdx], newBuck)

	payload := t.payload(newBuck.Data())
	return payload[0:t.tuplesize], nil
}

// AtomicAllocate is Allocate run while holding lock, which the caller
// supplies. The table keeps no lock of its own in its bucket headers, so
// callers decide the lock granularity (one lock shared by all buckets, as
// the operators in internal/operators use, or one per bucket).
func (t *Table) AtomicAllocate(bucketIdx uint32, lock *xsync.SpinLock) ([]byte, error) {
	lock.Lock()
	defer lock.Unlock()
	return t.Allocate(bucketIdx)
}

// StatSpills returns the approximate, monotonically non-decreasing count of
// overflow allocations made so far.
func (t *Table) StatSpills() uint32 { return t.spills }

// Destroy releases the table's partitioned memory back through the
// allocator (a no-op for arena-backed partitions, a real munmap for
// mmap-backed ones, per the allocator's own deallocation contract).
func (t *Table) Destroy() error {
	for i, p := range t.partitions {
		if err := t.alloc.Deallocate(p); err != nil {
			return fmt.Errorf("hashtable: deallocating partition %d: %w", i, err)
		}
	}
	t.partitions = nil
	t.overflow = nil
	return nil
}

// StatBuckets returns a histogram of tuple counts per bucket: the i-th
// element is the number of buckets holding exactly i tuples.
func (t *Table) StatBuckets() []uint32 {
	var ret []uint32
	it := t.CreateIterator()
	for i := uint32(0); i < t.GetNumberOfBuckets(); i++ {
		t.PlaceIterator(it, i)
		count := 0
		for it.Next() {
			count++
		}
		for len(ret) <= count {
			ret = append(ret, 0)
		}
		ret[count]++
	}
	return ret
}
