// Package affinity pins the calling OS thread to a specific set of logical
// CPUs. It is the executor half of internal/topology's Binding resolution:
// once a worker's logical CPU is known, SetAffinity does the actual
// operating-system-level pinning, which the design requires to "succeed
// before any NUMA-local allocation is issued by that worker."
//
// Grounded on the teacher's internal/numa/affinity.go for the call shape,
// but that file's platform bodies are non-functional stubs; the real
// syscall here is golang.org/x/sys/unix.SchedSetaffinity, the same package
// the teacher's own go.mod already carries transitively.
package affinity

import (
	"fmt"
	"runtime"
)

// SetAffinity restricts the calling OS thread to the given set of logical
// CPU ids. The caller must have already called runtime.LockOSThread, or
// use PinCurrentThread instead, which does both.
func SetAffinity(cpuIDs []int) error {
	if len(cpuIDs) == 0 {
		return fmt.Errorf("affinity: no CPU ids given")
	}
	return setAffinity(cpuIDs)
}

// PinCurrentThread locks the calling goroutine to its current OS thread
// (so the affinity mask applies to a thread that will not be reused by a
// different goroutine) and then pins that thread to cpuIDs.
func PinCurrentThread(cpuIDs []int) error {
	runtime.LockOSThread()
	if err := SetAffinity(cpuIDs); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}
