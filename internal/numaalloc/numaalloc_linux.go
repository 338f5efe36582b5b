//go:build linux

package numaalloc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux mbind(2) mode constants, not exposed by golang.org/x/sys/unix as of
// this writing, so declared locally exactly as the original's
// numaallocate.cpp references them directly from <numaif.h>.
const (
	mpolPreferred = 1
	mpolBind      = 2
	mpolModeFlagStatic = 1 << 15 // MPOL_F_STATIC_NODES; not passed to mbind below
	sysMbind      = 237          // x86-64 syscall number for mbind; placement best-effort only
)

// mmapArenaOnNode reserves size bytes of anonymous memory and attempts to
// bind it to node with strict placement, retrying up to 1024 times to
// tolerate transient kernel contention, matching the original's
// lookaside_init_alloc.
func mmapArenaOnNode(size, node int) ([]byte, error) {
	return mmapAllocateOnNodeWithMode(size, node, true)
}

// mmapAllocateOnNode is the slow-path allocator: anonymous mmap followed by
// a best-effort MPOL_PREFERRED binding to node, whether node was requested
// explicitly or resolved from "local". It never uses MPOL_BIND or a
// page-moving flag; a negative node skips the binding entirely.
func mmapAllocateOnNode(size, node int) ([]byte, error) {
	return mmapAllocateOnNodeWithMode(size, node, false)
}

func mmapAllocateOnNodeWithMode(size, node int, strict bool) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	mode := mpolPreferred
	if strict {
		mode = mpolBind
	}

	var lastErr error
	for attempt := 0; attempt < 1024; attempt++ {
		if err := mbind(mem, mode, node); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		// Placement is advisory: the mbind error is dropped and the mapped
		// memory is returned with a nil error. The original treats persistent mbind failure as tolerable (retry
		// budget exhausted, proceed anyway) since the kernel may still
		// satisfy the allocation from the requested node opportunistically.
		_ = lastErr
	}

	return mem, nil
}

// mbind issues the raw mbind(2) syscall binding mem to the given NUMA node
// under the given policy mode.
func mbind(mem []byte, mode int, node int) error {
	if node < 0 {
		return nil
	}
	nodemask := uint64(1) << uint(node)
	_, _, errno := unix.Syscall6(
		sysMbind,
		uintptr(unsafe.Pointer(&mem[0])),
		uintptr(len(mem)),
		uintptr(mode),
		uintptr(unsafe.Pointer(&nodemask)),
		uintptr(64), // maxnode
		0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

// mmapFree releases a slow-path allocation back to the OS.
func mmapFree(full []byte) error {
	return unix.Munmap(full)
}
