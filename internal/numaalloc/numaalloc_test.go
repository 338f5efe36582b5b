package numaalloc

import (
	"sync"
	"testing"
)

func TestAllocateOnNodeFastPathRoundTrip(t *testing.T) {
	a, err := New(nil, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	alloc, err := a.AllocateOnNode("TEST", 128, 0)
	if err != nil {
		t.Fatalf("AllocateOnNode: %v", err)
	}
	if got, want := len(alloc.Data()), 128; got != want {
		t.Errorf("len(Data()) = %d, want %d", got, want)
	}
	if got, want := alloc.Tag(), "TEST"; got != want {
		t.Errorf("Tag() = %q, want %q", got, want)
	}

	for i := range alloc.Data() {
		alloc.Data()[i] = byte(i)
	}
	for i, b := range alloc.Data() {
		if b != byte(i) {
			t.Fatalf("data corrupted at %d: got %d", i, b)
		}
	}
}

func TestAllocateOnNodeRejectsOutOfRangeNode(t *testing.T) {
	a, err := New(nil, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.AllocateOnNode("TEST", 8, 5); err == nil {
		t.Fatal("expected error for out-of-range node")
	}
}

func TestConcurrentFastAllocationsDoNotOverlap(t *testing.T) {
	a, err := New(nil, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 200
	const size = 256
	allocs := make([]*Allocation, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			al, err := a.AllocateOnNode("CONC", size, 0)
			if err != nil {
				t.Errorf("AllocateOnNode: %v", err)
				return
			}
			for j := range al.Data() {
				al.Data()[j] = byte(i)
			}
			allocs[i] = al
		}(i)
	}
	wg.Wait()

	for i, al := range allocs {
		if al == nil {
			continue
		}
		for _, b := range al.Data() {
			if b != byte(i) {
				t.Fatalf("allocation %d: overlap detected, found byte %d", i, b)
			}
		}
	}
}

func TestDeallocateIsNoopForFastPath(t *testing.T) {
	a, err := New(nil, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	alloc, err := a.AllocateOnNode("TEST", 16, 0)
	if err != nil {
		t.Fatalf("AllocateOnNode: %v", err)
	}
	if err := a.Deallocate(alloc); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
}

func TestTotalBytesAccumulates(t *testing.T) {
	a, err := New(nil, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.AllocateOnNode("TEST", 100, 0); err != nil {
		t.Fatalf("AllocateOnNode: %v", err)
	}
	if _, err := a.AllocateOnNode("TEST", 50, 0); err != nil {
		t.Fatalf("AllocateOnNode: %v", err)
	}
	if got, want := a.TotalBytes(), int64(150); got != want {
		t.Errorf("TotalBytes() = %d, want %d", got, want)
	}
}
