package page

import (
	"encoding/binary"
	"testing"

	"github.com/sblanas/pythia-sub001/engine/schema"
)

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.ColumnSpec{{Type: schema.Int64}})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func TestAllocateAndReadBack(t *testing.T) {
	s := mustSchema(t)
	p := New(s, 4)

	for i := int64(0); i < 4; i++ {
		off, err := p.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		binary.LittleEndian.PutUint64(p.Bytes()[off:], uint64(i))
	}

	if got, want := p.GetNumTuples(), 4; got != want {
		t.Errorf("GetNumTuples() = %d, want %d", got, want)
	}

	for i := int64(0); i < 4; i++ {
		off := p.GetTupleOffset(int(i))
		if off < 0 {
			t.Fatalf("GetTupleOffset(%d) < 0", i)
		}
		got := int64(binary.LittleEndian.Uint64(p.Bytes()[off:]))
		if got != i {
			t.Errorf("tuple %d = %d, want %d", i, got, i)
		}
	}
}

func TestAllocateReturnsPageFullError(t *testing.T) {
	s := mustSchema(t)
	p := New(s, 1)

	if _, err := p.Allocate(); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if _, err := p.Allocate(); err == nil {
		t.Fatal("expected PageFullError on second Allocate")
	}
}

func TestClearResetsUsedSpace(t *testing.T) {
	s := mustSchema(t)
	p := New(s, 2)
	if _, err := p.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	p.Clear()
	if got := p.GetUsedSpace(); got != 0 {
		t.Errorf("GetUsedSpace() after Clear = %d, want 0", got)
	}
	if got := p.GetTupleOffset(0); got != -1 {
		t.Errorf("GetTupleOffset(0) after Clear = %d, want -1", got)
	}
}
