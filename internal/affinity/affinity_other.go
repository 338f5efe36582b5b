//go:build !linux

package affinity

import "fmt"

// setAffinity has no native implementation outside Linux; callers should
// treat this as the design's "enumeration is unsupported" case and avoid
// relying on real pinning on these platforms.
func setAffinity(cpuIDs []int) error {
	return fmt.Errorf("affinity: CPU pinning is not implemented on this platform")
}
