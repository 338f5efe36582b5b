package xsync

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestBarrierReleasesAllParticipants(t *testing.T) {
	const n = 8
	b := NewBarrier(n)
	var wg sync.WaitGroup
	var before, after int32

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt32(&before, 1)
			b.Arrive()
			atomic.AddInt32(&after, 1)
		}()
	}
	wg.Wait()

	if before != n || after != n {
		t.Fatalf("before=%d after=%d, want %d each", before, after, n)
	}
}

func TestBarrierIsReusable(t *testing.T) {
	const n = 4
	b := NewBarrier(n)
	var wg sync.WaitGroup
	var rounds int32

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < 3; r++ {
				b.Arrive()
			}
			atomic.AddInt32(&rounds, 1)
		}()
	}
	wg.Wait()

	if rounds != n {
		t.Fatalf("rounds = %d, want %d", rounds, n)
	}
}

func TestBarrierPanicsOnInvalidCount(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for n < 1")
		}
	}()
	NewBarrier(0)
}

func TestCompareAndSwapInt64ReturnsPriorValue(t *testing.T) {
	var v int64 = 5
	prior := CompareAndSwapInt64(&v, 5, 9)
	if prior != 5 {
		t.Errorf("prior = %d, want 5", prior)
	}
	if v != 9 {
		t.Errorf("v = %d, want 9", v)
	}

	prior = CompareAndSwapInt64(&v, 5, 100)
	if prior != 9 {
		t.Errorf("failed CAS prior = %d, want 9 (current value)", prior)
	}
	if v != 9 {
		t.Errorf("v changed on failed CAS: %d", v)
	}
}

func TestIncrementInt64ReturnsPriorValue(t *testing.T) {
	var v int64 = 10
	prior := IncrementInt64(&v, 3)
	if prior != 10 {
		t.Errorf("prior = %d, want 10", prior)
	}
	if v != 13 {
		t.Errorf("v = %d, want 13", v)
	}
}

func TestSpinLockMutualExclusion(t *testing.T) {
	var l SpinLock
	l.Reset()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock()
			counter++
			l.Unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}
