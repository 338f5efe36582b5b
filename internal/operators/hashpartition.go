package operators

import (
	"context"
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

// HashPartition routes every tuple from a single input into one of
// hasher.Buckets() hash-table buckets keyed on the field at fieldOffset,
// then streams the partitioned tuples back out, each worker draining a
// contiguous, disjoint range of buckets -- the same shard-range formula
// internal/hashtable.Table.BucketClear uses.
//
// The build (draining the input into the table) runs once, driven by
// whichever worker's ScanStart call arrives first; this mirrors the
// original build/probe split used by hash-based operators but simplifies
// the original's fully parallel build phase to a single driver thread,
// documented in DESIGN.md as an explicit simplification for this
// demonstration operator.
type HashPartition struct {
	logger      *logrus.Logger
	input       operator.Operator
	sch         *schema.Schema
	hasher      hashfn.Hasher
	fieldOffset int
	fieldSize   int
	workers     uint32

	table hashtable.Table
	lock  xsync.SpinLock

	buildOnce sync.Once
	buildErr  error

	mu    sync.Mutex
	state map[uint16]*shardScanState
}

type shardScanState struct {
	out         *page.Page
	it          *hashtable.Iterator
	bucketIdx   uint32
	endBucket   uint32
	havePending bool
}

// NewHashPartition builds a HashPartition over input, keyed on the field at
// fieldOffset/fieldSize, using hasher to pick a bucket and alloc/bucksize/
// tuplesize/partitionNodes to size the backing table exactly as
// hashtable.Table.Init expects. workers is the number of distinct thread
// IDs that will call GetNext, used to shard buckets across them evenly.
func NewHashPartition(logger *logrus.Logger, input operator.Operator, hasher hashfn.Hasher, fieldOffset, fieldSize int, alloc *numaalloc.Allocator, bucksize, tuplesize uint32, partitionNodes []int, workers uint32) (*HashPartition, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if workers == 0 {
		return nil, fmt.Errorf("operators: HashPartition: workers must be positive")
	}
	hp := &HashPartition{
		logger:      logger,
		input:       input,
		hasher:      hasher,
		fieldOffset: fieldOffset,
		fieldSize:   fieldSize,
		workers:     workers,
		state:       make(map[uint16]*shardScanState),
	}
	if err := hp.table.Init(alloc, hasher.Buckets(), bucksize, tuplesize, partitionNodes); err != nil {
		return nil, fmt.Errorf("operators: HashPartition: %w", err)
	}
	hp.table.BucketClear(0, 1)
	hp.lock.Reset()
	return hp, nil
}

func (hp *HashPartition) Init(ctx context.Context) error {
	hp.sch = hp.input.OutSchema()
	return hp.input.Init(ctx)
}

func (hp *HashPartition) ThreadInit(threadID uint16) error {
	hp.mu.Lock()
	hp.state[threadID] = &shardScanState{out: page.New(hp.sch, 64), it: hp.table.CreateIterator()}
	hp.mu.Unlock()
	return hp.input.ThreadInit(threadID)
}

func (hp *HashPartition) build(driverThread uint16) error {
	if _, err := hp.input.ScanStart(driverThread, nil, nil); err != nil {
		return err
	}
	width := hp.sch.TupleSize()
	for {
		rc, p := hp.input.GetNext(driverThread)
		if rc == operator.Error {
			return fmt.Errorf("operators: HashPartition: build: input returned Error")
		}
		if p != nil {
			n := p.GetNumTuples()
			for i := 0; i < n; i++ {
				off := p.GetTupleOffset(i)
				tuple := p.Bytes()[off : off+width]
				key := tuple[hp.fieldOffset : hp.fieldOffset+hp.fieldSize]
				bucket := hp.hasher.Hash(key)
				slot, err := hp.table.AtomicAllocate(bucket, &hp.lock)
				if err != nil {
					return fmt.Errorf("operators: HashPartition: build: %w", err)
				}
				copy(slot, tuple)
			}
		}
		if rc == operator.Finished {
			break
		}
	}
	return hp.input.ScanStop(driverThread)
}

func (hp *HashPartition) ScanStart(threadID uint16, indexPage *page.Page, indexSchema *schema.Schema) (operator.ResultCode, error) {
	hp.buildOnce.Do(func() {
		hp.buildErr = hp.build(threadID)
	})
	if hp.buildErr != nil {
		return operator.Error, hp.buildErr
	}

	nbuckets := hp.table.GetNumberOfBuckets()
	start := uint32(uint64(threadID) * uint64(nbuckets) / uint64(hp.workers))
	end := uint32(uint64(threadID+1) * uint64(nbuckets) / uint64(hp.workers))

	hp.mu.Lock()
	st := hp.state[threadID]
	st.bucketIdx = start
	st.endBucket = end
	st.havePending = false
	hp.mu.Unlock()

	return operator.Ready, nil
}

func (hp *HashPartition) GetNext(threadID uint16) (operator.ResultCode, *page.Page) {
	hp.mu.Lock()
	st := hp.state[threadID]
	hp.mu.Unlock()

	out := st.out
	out.Clear()
	width := hp.sch.TupleSize()

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
				hp.table.PlaceIterator(st.it, st.bucketIdx)
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

func (hp *HashPartition) ScanStop(threadID uint16) error { return nil }

func (hp *HashPartition) ThreadClose(threadID uint16) error {
	hp.mu.Lock()
	delete(hp.state, threadID)
	hp.mu.Unlock()
	return hp.input.ThreadClose(threadID)
}

func (hp *HashPartition) Destroy() error {
	if err := hp.table.Destroy(); err != nil {
		return err
	}
	return hp.input.Destroy()
}

func (hp *HashPartition) OutSchema() *schema.Schema { return hp.sch }

var _ operator.Operator = (*HashPartition)(nil)
