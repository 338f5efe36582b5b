package xsync

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a busy-wait mutual exclusion lock. hashtable.Table.AtomicAllocate
// takes one from its caller; it is not stored inside the hash table's bucket
// headers.
type SpinLock struct {
	state uint32 // 0 = unlocked, 1 = locked
}

// Reset initializes the lock to the unlocked state. Required before first
// use, and safe only when no other goroutine is contending for the lock.
func (s *SpinLock) Reset() {
	atomic.StoreUint32(&s.state, 0)
}

// Lock busy-waits until the lock is acquired.
func (s *SpinLock) Lock() {
	spins := 0
	for !atomic.CompareAndSwapUint32(&s.state, 0, 1) {
		spins++
		if spins > 64 {
			runtime.Gosched()
			spins = 0
		}
	}
}

// Unlock releases the lock.
func (s *SpinLock) Unlock() {
	atomic.StoreUint32(&s.state, 0)
}
