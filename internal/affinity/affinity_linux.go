//go:build linux

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// setAffinity builds a CPU set mask from cpuIDs and applies it to the
// calling thread via sched_setaffinity(2), the real syscall the teacher's
// stub never issued.
func setAffinity(cpuIDs []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpuIDs {
		if cpu < 0 {
			return fmt.Errorf("affinity: negative CPU id %d", cpu)
		}
		set.Set(cpu)
	}

	// Tid 0 means "the calling thread" to sched_setaffinity.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity: %w", err)
	}
	return nil
}
