package operators

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sblanas/pythia-sub001/engine/page"
	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/hashfn"
	"github.com/sblanas/pythia-sub001/internal/hashtable"
	"github.com/sblanas/pythia-sub001/internal/numaalloc"
	"github.com/sblanas/pythia-sub001/internal/operator"
	"github.com/sblanas/pythia-sub001/internal/xsync"
)

// HashAggregate computes SUM(valueColumn) GROUP BY keyColumn over a single
// input, storing one (key, running-sum) slot per distinct key in a hash
// table and streaming the finished groups back out once the build (driven
// by whichever worker's ScanStart arrives first, as in HashPartition and
// HashJoin) has drained the input. Restricted to an Int64 value column and
// a sum aggregate; the original's full aggregate-function table (count,
// avg, min, max) is out of scope for this demonstration operator.
type HashAggregate struct {
	logger *logrus.Logger
	input  operator.Operator

	inSch, outSch *schema.Schema
	hasher        hashfn.Hasher
	keyOffset     int
	keySize       int
	valOffset     int

	table hashtable.Table
	lock  xsync.SpinLock

	buildOnce sync.Once
	buildErr  error

	workers uint32

	mu    sync.Mutex
	state map[uint16]*shardScanState
}

// NewHashAggregate builds a HashAggregate over input, grouping by the field
// at keyOffset/keySpec and summing the Int64 field at valOffset.
func NewHashAggregate(logger *logrus.Logger, input operator.Operator, hasher hashfn.Hasher, keySpec schema.ColumnSpec, keyOffset, valOffset int, alloc *numaalloc.Allocator, bucksize uint32, partitionNodes []int, workers uint32) (*HashAggregate, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if workers == 0 {
		return nil, fmt.Errorf("operators: HashAggregate: workers must be positive")
	}
	outSch, err := schema.New([]schema.ColumnSpec{keySpec, {Type: schema.Int64}})
	if err != nil {
		return nil, fmt.Errorf("operators: HashAggregate: building output schema: %w", err)
	}

	ha := &HashAggregate{
		logger:    logger,
		input:     input,
		outSch:    outSch,
		hasher:    hasher,
		keyOffset: keyOffset,
		keySize:   outSch.Get(0).Size,
		valOffset: valOffset,
		workers:   workers,
		state:     make(map[uint16]*shardScanState),
	}
	tupleSize := uint32(outSch.TupleSize())
	if err := ha.table.Init(alloc, hasher.Buckets(), bucksize, tupleSize, partitionNodes); err != nil {
		return nil, fmt.Errorf("operators: HashAggregate: %w", err)
	}
	ha.table.BucketClear(0, 1)
	ha.lock.Reset()
	return ha, nil
}

func (ha *HashAggregate) Init(ctx context.Context) error {
	ha.inSch = ha.input.OutSchema()
	return ha.input.Init(ctx)
}

func (ha *HashAggregate) ThreadInit(threadID uint16) error {
	ha.mu.Lock()
	ha.state[threadID] = &shardScanState{out: page.New(ha.outSch, 64), it: ha.table.CreateIterator()}
	ha.mu.Unlock()
	return ha.input.ThreadInit(threadID)
}

// upsert finds the slot for key in bucket, adding val to its running sum if
// present, or allocating a fresh (key, val) slot otherwise. Only safe to
// call from the single build driver thread: it mutates table bytes in
// place without the bucket-level locking a concurrent build would need.
func (ha *HashAggregate) upsert(bucket uint32, key []byte, val int64) error {
	it := ha.table.CreateIterator()
	ha.table.PlaceIterator(it, bucket)
	for it.Next() {
		t := it.Tuple()
		if bytes.Equal(t[:ha.keySize], key) {
			cur := int64(binary.LittleEndian.Uint64(t[ha.keySize : ha.keySize+8]))
			binary.LittleEndian.PutUint64(t[ha.keySize:ha.keySize+8], uint64(cur+val))
			return nil
		}
	}

	slot, err := ha.table.AtomicAllocate(bucket, &ha.lock)
	if err != nil {
		return err
	}
	copy(slot[:ha.keySize], key)
	binary.LittleEndian.PutUint64(slot[ha.keySize:ha.keySize+8], uint64(val))
	return nil
}

func (ha *HashAggregate) build(driverThread uint16) error {
	if _, err := ha.input.ScanStart(driverThread, nil, nil); err != nil {
		return err
	}
	width := ha.inSch.TupleSize()
	for {
		rc, p := ha.input.GetNext(driverThread)
		if rc == operator.Error {
			return fmt.Errorf("operators: HashAggregate: build: input returned Error")
		}
		if p != nil {
			n := p.GetNumTuples()
			for i := 0; i < n; i++ {
				off := p.GetTupleOffset(i)
				tuple := p.Bytes()[off : off+width]
				key := tuple[ha.keyOffset : ha.keyOffset+ha.keySize]
				val := int64(binary.LittleEndian.Uint64(tuple[ha.valOffset : ha.valOffset+8]))
				bucket := ha.hasher.Hash(key)
				if err := ha.upsert(bucket, key, val); err != nil {
					return fmt.Errorf("operators: HashAggregate: build: %w", err)
				}
			}
		}
		if rc == operator.Finished {
			break
		}
	}
	return ha.input.ScanStop(driverThread)
}

func (ha *HashAggregate) ScanStart(threadID uint16, indexPage *page.Page, indexSchema *schema.Schema) (operator.ResultCode, error) {
	ha.buildOnce.Do(func() {
		ha.buildErr = ha.build(threadID)
	})
	if ha.buildErr != nil {
		return operator.Error, ha.buildErr
	}

	nbuckets := ha.table.GetNumberOfBuckets()
	start := uint32(uint64(threadID) * uint64(nbuckets) / uint64(ha.workers))
	end := uint32(uint64(threadID+1) * uint64(nbuckets) / uint64(ha.workers))

	ha.mu.Lock()
	st := ha.state[threadID]
	st.bucketIdx = start
	st.endBucket = end
	st.havePending = false
	ha.mu.Unlock()

	return operator.Ready, nil
}

func (ha *HashAggregate) GetNext(threadID uint16) (operator.ResultCode, *page.Page) {
	ha.mu.Lock()
	st := ha.state[threadID]
	ha.mu.Unlock()

	out := st.out
	out.Clear()
	width := ha.outSch.TupleSize()

	for {
		if !st.havePending {
			for {
				if st.it.Next() {
					st.havePending = true
					break
				}
				if st.bucketIdx >= st.endBucket {
					if out.GetNumTuples() > 0 {
						return operator.Ready, out
					}
					return operator.Finished, out
				}
				ha.table.PlaceIterator(st.it, st.bucketIdx)
				st.bucketIdx++
			}
		}

		dst, err := out.Allocate()
		if err != nil {
			return operator.Ready, out
		}
		copy(out.Bytes()[dst:dst+width], st.it.Tuple())
		st.havePending = false
	}
}

func (ha *HashAggregate) ScanStop(threadID uint16) error { return nil }

func (ha *HashAggregate) ThreadClose(threadID uint16) error {
	ha.mu.Lock()
	delete(ha.state, threadID)
	ha.mu.Unlock()
	return ha.input.ThreadClose(threadID)
}

func (ha *HashAggregate) Destroy() error {
	if err := ha.table.Destroy(); err != nil {
		return err
	}
	return ha.input.Destroy()
}

func (ha *HashAggregate) OutSchema() *schema.Schema { return ha.outSch }

var _ operator.Operator = (*HashAggregate)(nil)
