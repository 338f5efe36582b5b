package operators

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sblanas/pythia-sub001/engine/page"
	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/comparator"
	"github.com/sblanas/pythia-sub001/internal/hashfn"
	"github.com/sblanas/pythia-sub001/internal/hashtable"
	"github.com/sblanas/pythia-sub001/internal/numaalloc"
	"github.com/sblanas/pythia-sub001/internal/operator"
	"github.com/sblanas/pythia-sub001/internal/xsync"
)

// HashJoin is a classic build/probe equi-join: the build side (left) is
// fully drained into a hash table keyed on its join column, driven by
// whichever worker's ScanStart arrives first (the same single-driver
// simplification HashPartition documents); every worker then independently
// probes the table with its own share of the right input, emitting
// left||right tuples for every match confirmed by an equality comparator
// (guarding against the hash function's collisions across unrelated keys
// landing in the same bucket).
type HashJoin struct {
	logger *logrus.Logger
	left   operator.Operator
	right  operator.Operator

	leftSch, rightSch, outSch *schema.Schema
	hasher                    hashfn.Hasher
	leftKeyOffset             int
	rightKeyOffset            int
	keySize                   int
	bound                     comparator.Bound

	table hashtable.Table
	lock  xsync.SpinLock

	buildOnce sync.Once
	buildErr  error

	mu    sync.Mutex
	state map[uint16]*joinScanState
}

type joinScanState struct {
	out      *page.Page
	probeIt  *hashtable.Iterator
	rightIn  *page.Page
	rightIdx int
	rightEOF bool

	probeTuple     []byte
	pendingMatches [][]byte
	pendingIdx     int
}

// NewHashJoin builds a HashJoin. leftKeySpec gives the column type used for
// both join columns, found at leftKeyOffset and rightKeyOffset in their
// inputs (so both columns share that type and width); op is almost always comparator.Equal for an equi-join, but
// any comparator-supported operator is accepted.
func NewHashJoin(logger *logrus.Logger, left, right operator.Operator, hasher hashfn.Hasher, leftKeySpec schema.ColumnSpec, leftKeyOffset int, rightKeyOffset int, op comparator.Op, alloc *numaalloc.Allocator, bucksize, tuplesize uint32, partitionNodes []int) (*HashJoin, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bound, err := comparator.Init(leftKeySpec, leftKeyOffset, leftKeySpec, rightKeyOffset, op)
	if err != nil {
		return nil, err
	}
	// Canonicalize the key width the same way schema.New would, so an
	// Int32/Int64/Decimal key spec with Size left unset still yields the
	// correct byte width for slicing.
	keySchema, err := schema.New([]schema.ColumnSpec{leftKeySpec})
	if err != nil {
		return nil, fmt.Errorf("operators: HashJoin: %w", err)
	}
	keySize := keySchema.Get(0).Size

	hj := &HashJoin{
		logger:         logger,
		left:           left,
		right:          right,
		hasher:         hasher,
		leftKeyOffset:  leftKeyOffset,
		rightKeyOffset: rightKeyOffset,
		keySize:        keySize,
		bound:          bound,
		state:          make(map[uint16]*joinScanState),
	}
	if err := hj.table.Init(alloc, hasher.Buckets(), bucksize, tuplesize, partitionNodes); err != nil {
		return nil, fmt.Errorf("operators: HashJoin: %w", err)
	}
	hj.table.BucketClear(0, 1)
	hj.lock.Reset()
	return hj, nil
}

func concatSchema(a, b *schema.Schema) (*schema.Schema, error) {
	cols := make([]schema.ColumnSpec, 0, a.NumColumns()+b.NumColumns())
	for i := 0; i < a.NumColumns(); i++ {
		cols = append(cols, a.Get(i))
	}
	for i := 0; i < b.NumColumns(); i++ {
		cols = append(cols, b.Get(i))
	}
	return schema.New(cols)
}

func (hj *HashJoin) Init(ctx context.Context) error {
	hj.leftSch = hj.left.OutSchema()
	hj.rightSch = hj.right.OutSchema()
	out, err := concatSchema(hj.leftSch, hj.rightSch)
	if err != nil {
		return fmt.Errorf("operators: HashJoin: building output schema: %w", err)
	}
	hj.outSch = out
	if err := hj.left.Init(ctx); err != nil {
		return err
	}
	return hj.right.Init(ctx)
}

func (hj *HashJoin) ThreadInit(threadID uint16) error {
	hj.mu.Lock()
	hj.state[threadID] = &joinScanState{out: page.New(hj.outSch, 64), probeIt: hj.table.CreateIterator()}
	hj.mu.Unlock()
	if err := hj.left.ThreadInit(threadID); err != nil {
		return err
	}
	return hj.right.ThreadInit(threadID)
}

func (hj *HashJoin) build(driverThread uint16) error {
	if _, err := hj.left.ScanStart(driverThread, nil, nil); err != nil {
		return err
	}
	width := hj.leftSch.TupleSize()
	for {
		rc, p := hj.left.GetNext(driverThread)
		if rc == operator.Error {
			return fmt.Errorf("operators: HashJoin: build: left returned Error")
		}
		if p != nil {
			n := p.GetNumTuples()
			for i := 0; i < n; i++ {
				off := p.GetTupleOffset(i)
				tuple := p.Bytes()[off : off+width]
				key := tuple[hj.leftKeyOffset : hj.leftKeyOffset+hj.keySize]
				bucket := hj.hasher.Hash(key)
				slot, err := hj.table.AtomicAllocate(bucket, &hj.lock)
				if err != nil {
					return fmt.Errorf("operators: HashJoin: build: %w", err)
				}
				copy(slot, tuple)
			}
		}
		if rc == operator.Finished {
			break
		}
	}
	return hj.left.ScanStop(driverThread)
}

func (hj *HashJoin) ScanStart(threadID uint16, indexPage *page.Page, indexSchema *schema.Schema) (operator.ResultCode, error) {
	hj.buildOnce.Do(func() {
		hj.buildErr = hj.build(threadID)
	})
	if hj.buildErr != nil {
		return operator.Error, hj.buildErr
	}
	return hj.right.ScanStart(threadID, indexPage, indexSchema)
}

// fillMatches scans the bucket for st.probeTuple's key and records every
// candidate left tuple confirmed by the equality comparator. Candidates are
// stored as slice views into the table's backing memory, valid until the
// table is destroyed.
func (hj *HashJoin) fillMatches(st *joinScanState) {
	key := st.probeTuple[hj.rightKeyOffset : hj.rightKeyOffset+hj.keySize]
	bucket := hj.hasher.Hash(key)
	hj.table.PlaceIterator(st.probeIt, bucket)

	st.pendingMatches = st.pendingMatches[:0]
	for st.probeIt.Next() {
		cand := st.probeIt.Tuple()
		if hj.bound.Compare(cand, st.probeTuple) {
			st.pendingMatches = append(st.pendingMatches, cand)
		}
	}
	st.pendingIdx = 0
}

func (hj *HashJoin) nextProbeTuple(threadID uint16, st *joinScanState) bool {
	rightWidth := hj.rightSch.TupleSize()
	for {
		if st.rightIn != nil && st.rightIdx < st.rightIn.GetNumTuples() {
			off := st.rightIn.GetTupleOffset(st.rightIdx)
			st.rightIdx++
			st.probeTuple = st.rightIn.Bytes()[off : off+rightWidth]
			return true
		}
		if st.rightEOF {
			return false
		}
		rc, p := hj.right.GetNext(threadID)
		st.rightIn = p
		st.rightIdx = 0
		if rc == operator.Finished {
			st.rightEOF = true
		}
		if p == nil || p.GetNumTuples() == 0 {
			if st.rightEOF {
				return false
			}
		}
	}
}

func (hj *HashJoin) GetNext(threadID uint16) (operator.ResultCode, *page.Page) {
	hj.mu.Lock()
	st := hj.state[threadID]
	hj.mu.Unlock()

	out := st.out
	out.Clear()
	leftWidth := hj.leftSch.TupleSize()
	rightWidth := hj.rightSch.TupleSize()

	for {
		if st.probeTuple == nil || st.pendingIdx >= len(st.pendingMatches) {
			if st.probeTuple != nil {
				st.probeTuple = nil
			}
			if !hj.nextProbeTuple(threadID, st) {
				if out.GetNumTuples() > 0 {
					return operator.Ready, out
				}
				return operator.Finished, out
			}
			hj.fillMatches(st)
		}

		for st.pendingIdx < len(st.pendingMatches) {
			dst, err := out.Allocate()
			if err != nil {
				return operator.Ready, out
			}
			copy(out.Bytes()[dst:dst+leftWidth], st.pendingMatches[st.pendingIdx])
			copy(out.Bytes()[dst+leftWidth:dst+leftWidth+rightWidth], st.probeTuple)
			st.pendingIdx++
		}
	}
}

func (hj *HashJoin) ScanStop(threadID uint16) error {
	hj.mu.Lock()
	st := hj.state[threadID]
	st.rightIn = nil
	st.rightEOF = false
	st.probeTuple = nil
	hj.mu.Unlock()
	return hj.right.ScanStop(threadID)
}

func (hj *HashJoin) ThreadClose(threadID uint16) error {
	hj.mu.Lock()
	delete(hj.state, threadID)
	hj.mu.Unlock()
	if err := hj.left.ThreadClose(threadID); err != nil {
		return err
	}
	return hj.right.ThreadClose(threadID)
}

func (hj *HashJoin) Destroy() error {
	if err := hj.table.Destroy(); err != nil {
		return err
	}
	if err := hj.left.Destroy(); err != nil {
		return err
	}
	return hj.right.Destroy()
}

func (hj *HashJoin) OutSchema() *schema.Schema { return hj.outSch }

var _ operator.Operator = (*HashJoin)(nil)
