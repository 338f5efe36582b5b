package operators

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/comparator"
	"github.com/sblanas/pythia-sub001/internal/hashfn"
	"github.com/sblanas/pythia-sub001/internal/numaalloc"
	"github.com/sblanas/pythia-sub001/internal/operator"
)

func intSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.ColumnSpec{{Type: schema.Int64}})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func packInt64s(vals ...int64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

func runToCompletion(t *testing.T, op operator.Operator, threadID uint16) [][]byte {
	t.Helper()
	if err := op.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := op.ThreadInit(threadID); err != nil {
		t.Fatalf("ThreadInit: %v", err)
	}
	if _, err := op.ScanStart(threadID, nil, nil); err != nil {
		t.Fatalf("ScanStart: %v", err)
	}

	width := op.OutSchema().TupleSize()
	var out [][]byte
	for {
		rc, p := op.GetNext(threadID)
		if rc == operator.Error {
			t.Fatalf("GetNext returned Error")
		}
		if p != nil {
			for i := 0; i < p.GetNumTuples(); i++ {
				off := p.GetTupleOffset(i)
				tup := make([]byte, width)
				copy(tup, p.Bytes()[off:off+width])
				out = append(out, tup)
			}
		}
		if rc == operator.Finished {
			break
		}
	}

	if err := op.ScanStop(threadID); err != nil {
		t.Fatalf("ScanStop: %v", err)
	}
	if err := op.ThreadClose(threadID); err != nil {
		t.Fatalf("ThreadClose: %v", err)
	}
	if err := op.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	return out
}

func TestTupleScanYieldsEveryValueOnce(t *testing.T) {
	sch := intSchema(t)
	data := packInt64s(10, 20, 30, 40, 50)

	scan, err := NewTupleScan(nil, sch, data, 2)
	if err != nil {
		t.Fatalf("NewTupleScan: %v", err)
	}

	got := runToCompletion(t, scan, 0)
	if len(got) != 5 {
		t.Fatalf("got %d tuples, want 5", len(got))
	}
	seen := make(map[int64]bool)
	for _, tup := range got {
		seen[int64(binary.LittleEndian.Uint64(tup))] = true
	}
	for _, v := range []int64{10, 20, 30, 40, 50} {
		if !seen[v] {
			t.Errorf("missing value %d", v)
		}
	}
}

func TestTupleScanRejectsMisalignedData(t *testing.T) {
	sch := intSchema(t)
	if _, err := NewTupleScan(nil, sch, make([]byte, 5), 1); err == nil {
		t.Fatal("expected error for data length not a multiple of tuple width")
	}
}

func TestFilterPassesOnlyMatchingTuples(t *testing.T) {
	sch := intSchema(t)
	data := packInt64s(1, 2, 3, 4, 5, 6)
	scan, err := NewTupleScan(nil, sch, data, 3)
	if err != nil {
		t.Fatalf("NewTupleScan: %v", err)
	}

	rhs := make([]byte, 8)
	binary.LittleEndian.PutUint64(rhs, uint64(3))

	f, err := NewFilter(nil, scan, schema.ColumnSpec{Type: schema.Int64}, 0, comparator.Greater, rhs)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	got := runToCompletion(t, f, 0)
	if len(got) != 3 {
		t.Fatalf("got %d tuples, want 3 (4,5,6)", len(got))
	}
	for _, tup := range got {
		v := int64(binary.LittleEndian.Uint64(tup))
		if v <= 3 {
			t.Errorf("value %d should have been filtered out", v)
		}
	}
}

func TestHashPartitionRoutesEveryTupleExactlyOnce(t *testing.T) {
	sch := intSchema(t)
	data := packInt64s(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	scan, err := NewTupleScan(nil, sch, data, 4)
	if err != nil {
		t.Fatalf("NewTupleScan: %v", err)
	}

	alloc, err := numaalloc.New(nil, 1)
	if err != nil {
		t.Fatalf("numaalloc.New: %v", err)
	}
	hasher, err := hashfn.NewModuloValueHasher(4)
	if err != nil {
		t.Fatalf("NewModuloValueHasher: %v", err)
	}

	hp, err := NewHashPartition(nil, scan, hasher, 0, 8, alloc, 256, 8, nil, 1)
	if err != nil {
		t.Fatalf("NewHashPartition: %v", err)
	}

	got := runToCompletion(t, hp, 0)
	if len(got) != 10 {
		t.Fatalf("got %d tuples, want 10", len(got))
	}
	seen := make(map[int64]bool)
	for _, tup := range got {
		v := int64(binary.LittleEndian.Uint64(tup))
		if seen[v] {
			t.Fatalf("value %d emitted twice", v)
		}
		seen[v] = true
	}
}

func TestHashJoinMatchesOnEqualKeys(t *testing.T) {
	sch := intSchema(t)
	leftData := packInt64s(1, 2, 3, 4)
	rightData := packInt64s(2, 4, 5)

	leftScan, err := NewTupleScan(nil, sch, leftData, 2)
	if err != nil {
		t.Fatalf("NewTupleScan(left): %v", err)
	}
	rightScan, err := NewTupleScan(nil, sch, rightData, 2)
	if err != nil {
		t.Fatalf("NewTupleScan(right): %v", err)
	}

	alloc, err := numaalloc.New(nil, 1)
	if err != nil {
		t.Fatalf("numaalloc.New: %v", err)
	}
	hasher, err := hashfn.NewModuloValueHasher(4)
	if err != nil {
		t.Fatalf("NewModuloValueHasher: %v", err)
	}

	join, err := NewHashJoin(nil, leftScan, rightScan, hasher, schema.ColumnSpec{Type: schema.Int64}, 0, 0, comparator.Equal, alloc, 256, 8, nil)
	if err != nil {
		t.Fatalf("NewHashJoin: %v", err)
	}

	got := runToCompletion(t, join, 0)
	if len(got) != 2 {
		t.Fatalf("got %d join result tuples, want 2 (keys 2 and 4)", len(got))
	}
	for _, tup := range got {
		left := int64(binary.LittleEndian.Uint64(tup[0:8]))
		right := int64(binary.LittleEndian.Uint64(tup[8:16]))
		if left != right {
			t.Errorf("joined tuple has mismatched keys: left=%d right=%d", left, right)
		}
		if left != 2 && left != 4 {
			t.Errorf("unexpected join key %d", left)
		}
	}
}

func TestHashAggregateSumsPerGroup(t *testing.T) {
	keySchema, err := schema.New([]schema.ColumnSpec{{Type: schema.Int64}, {Type: schema.Int64}})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	// (group, value) pairs: (1,10) (2,20) (1,5) (2,1) (1,1)
	rows := [][2]int64{{1, 10}, {2, 20}, {1, 5}, {2, 1}, {1, 1}}
	data := make([]byte, 16*len(rows))
	for i, r := range rows {
		binary.LittleEndian.PutUint64(data[i*16:], uint64(r[0]))
		binary.LittleEndian.PutUint64(data[i*16+8:], uint64(r[1]))
	}

	scan, err := NewTupleScan(nil, keySchema, data, 2)
	if err != nil {
		t.Fatalf("NewTupleScan: %v", err)
	}

	alloc, err := numaalloc.New(nil, 1)
	if err != nil {
		t.Fatalf("numaalloc.New: %v", err)
	}
	hasher, err := hashfn.NewModuloValueHasher(4)
	if err != nil {
		t.Fatalf("NewModuloValueHasher: %v", err)
	}

	agg, err := NewHashAggregate(nil, scan, hasher, schema.ColumnSpec{Type: schema.Int64}, 0, 8, alloc, 256, nil, 1)
	if err != nil {
		t.Fatalf("NewHashAggregate: %v", err)
	}

	got := runToCompletion(t, agg, 0)
	sums := make(map[int64]int64)
	for _, tup := range got {
		key := int64(binary.LittleEndian.Uint64(tup[0:8]))
		sum := int64(binary.LittleEndian.Uint64(tup[8:16]))
		sums[key] = sum
	}
	if len(sums) != 2 {
		t.Fatalf("got %d groups, want 2", len(sums))
	}
	if sums[1] != 16 {
		t.Errorf("group 1 sum = %d, want 16", sums[1])
	}
	if sums[2] != 21 {
		t.Errorf("group 2 sum = %d, want 21", sums[2])
	}
}
