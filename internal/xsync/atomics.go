package xsync

import "sync/atomic"

// CompareAndSwapInt64 performs a CAS on *addr, returning the value observed
// at *addr immediately before the operation. Success is indicated by the
// returned value equaling old -- matching the original's
// atomic_compare_and_swap<T> contract, which differs from Go's native
// bool-returning sync/atomic.CompareAndSwapInt64.
func CompareAndSwapInt64(addr *int64, old, new int64) int64 {
	for {
		cur := atomic.LoadInt64(addr)
		if cur != old {
			return cur
		}
		if atomic.CompareAndSwapInt64(addr, old, new) {
			return old
		}
		// Lost the race against a concurrent writer; retry the load/compare.
	}
}

// CompareAndSwapUint64 is the uint64 counterpart of CompareAndSwapInt64.
func CompareAndSwapUint64(addr *uint64, old, new uint64) uint64 {
	for {
		cur := atomic.LoadUint64(addr)
		if cur != old {
			return cur
		}
		if atomic.CompareAndSwapUint64(addr, old, new) {
			return old
		}
	}
}

// IncrementInt64 adds delta to *addr and returns the value observed
// immediately before the increment (the original's atomic_increment<T>
// contract; Go's atomic.AddInt64 returns the new value instead).
func IncrementInt64(addr *int64, delta int64) int64 {
	return atomic.AddInt64(addr, delta) - delta
}

// IncrementUint32 is the uint32 counterpart of IncrementInt64, used for the
// hash table's spill counter.
func IncrementUint32(addr *uint32, delta uint32) uint32 {
	return atomic.AddUint32(addr, delta) - delta
}
