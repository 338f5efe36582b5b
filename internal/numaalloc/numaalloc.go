// Package numaalloc implements the tagged, NUMA-aware allocator: per-node
// lookaside arenas serving a lock-free CAS bump allocator for small
// requests, and an anonymous-mmap slow path bound to a node for large
// requests or arena exhaustion.
//
// Grounded on original_source/util/numaallocate.cpp for the exact
// algorithm (64-byte alignment plus padding, the 16 MiB fast/slow
// threshold, the AllocHeader/LookasideHeader layout, the 1024-retry
// placement loop) and on the teacher's internal/numa/manager.go for the
// Go-idiomatic logger-threaded wrapping.
package numaalloc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sblanas/pythia-sub001/internal/engineerr"
)

const (
	// FastPathThreshold is the largest request size served by the arena
	// bump allocator; anything larger takes the mmap slow path.
	FastPathThreshold = 16 * 1024 * 1024

	// arenaSize is the size of each per-node lookaside arena, eagerly
	// reserved at startup.
	arenaSize = 1 * 1024 * 1024 * 1024

	// alignment is the byte boundary every allocation is rounded up to,
	// with one further block of padding added to avoid false sharing
	// between adjacent allocations.
	alignment = 64

	// headerSize mirrors the original's 32-byte AllocHeader: a 4-byte
	// tag, a mmap-origin flag, an 8-byte size field, and padding.
	headerSize = 32
)

// Allocation is the handle returned by the allocator: the header-prefixed
// backing region plus the caller-visible data slice, mirroring the
// original's "every allocation is prefixed by a header" data model.
type Allocation struct {
	full       []byte // headerSize + requested size
	size       int
	mmapOrigin bool
	tag        string
}

// Data returns the caller-visible bytes (the allocation's header is not
// included).
func (a *Allocation) Data() []byte { return a.full[headerSize : headerSize+a.size] }

// Tag returns the 4-character attribution tag this allocation was made
// with.
func (a *Allocation) Tag() string { return a.tag }

// Allocator owns one lookaside arena per NUMA node plus the global
// accounting counters. It is process-lifetime: arenas are never released
// back to the OS during a query, matching the design's memory ownership
// model.
type Allocator struct {
	logger *logrus.Logger

	mu         sync.Mutex // guards accounting only, never the fast path
	totalBytes int64
	histogram  map[string]int64 // "tag|node" -> bytes

	nodeCount int
	arenas    []*arena
}

type arena struct {
	mem    []byte
	cursor int64 // CAS bump cursor, byte offset into mem
}

// New constructs an Allocator with one arena per NUMA node. Arena backing
// memory is obtained via mmapArenaOnNode (real anonymous mmap + placement
// on Linux, a plain make([]byte) fallback elsewhere -- see
// numaalloc_linux.go / numaalloc_other.go).
func New(logger *logrus.Logger, nodeCount int) (*Allocator, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if nodeCount < 1 {
		return nil, fmt.Errorf("numaalloc: nodeCount must be >= 1, got %d", nodeCount)
	}

	a := &Allocator{
		logger:    logger,
		histogram: make(map[string]int64),
		nodeCount: nodeCount,
		arenas:    make([]*arena, nodeCount),
	}

	for node := 0; node < nodeCount; node++ {
		mem, err := mmapArenaOnNode(arenaSize, node)
		if err != nil {
			return nil, fmt.Errorf("numaalloc: reserving arena for node %d: %w", node, err)
		}
		a.arenas[node] = &arena{mem: mem}
		logger.WithFields(logrus.Fields{"node": node, "bytes": arenaSize}).Debug("numaalloc: arena reserved")
	}

	return a, nil
}

func roundUp(size, to int) int {
	return ((size + to - 1) / to) * to
}

// AllocateOnNode allocates size bytes tagged with a 4-character tag,
// preferring node (-1 means "local to the caller," realized here as node 0
// since Go does not expose the calling goroutine's current NUMA node).
// Requests <= FastPathThreshold try the arena bump allocator first; larger
// requests, and any allocation that finds its arena exhausted, take the
// mmap slow path. Allocation failure on the slow path is a fatal assertion
// per the design and is surfaced as a panic carrying
// engineerr.ErrAllocationFailed.
func (a *Allocator) AllocateOnNode(tag string, size int, node int) (*Allocation, error) {
	if node == -1 {
		node = 0
	}
	if node < 0 || node >= a.nodeCount {
		return nil, fmt.Errorf("numaalloc: node %d out of range (have %d nodes)", node, a.nodeCount)
	}

	var full []byte
	var mmapOrigin bool

	if size <= FastPathThreshold {
		if buf, ok := a.fastAllocate(node, size); ok {
			full = buf
		}
	}

	if full == nil {
		buf, err := mmapAllocateOnNode(headerSize+size, node)
		if err != nil {
			panic(fmt.Errorf("%w: %v", engineerr.ErrAllocationFailed, err))
		}
		full = buf
		mmapOrigin = true
	}

	writeHeader(full, tag, size, mmapOrigin)
	a.accumulate(tag, node, int64(size))

	return &Allocation{full: full, size: size, mmapOrigin: mmapOrigin, tag: tag}, nil
}

// AllocateLocal is AllocateOnNode with node == -1 ("local").
func (a *Allocator) AllocateLocal(tag string, size int) (*Allocation, error) {
	return a.AllocateOnNode(tag, size, -1)
}

// fastAllocate attempts the lock-free CAS bump allocation from the given
// node's arena. Returns ok=false on exhaustion, signalling the caller to
// fall through to the slow path, exactly as the design specifies.
func (a *Allocator) fastAllocate(node, size int) (full []byte, ok bool) {
	ar := a.arenas[node]
	need := int64(roundUp(headerSize+size, alignment) + alignment) // + one padding block

	for {
		cur := atomic.LoadInt64(&ar.cursor)
		next := cur + need
		if next > int64(len(ar.mem)) {
			return nil, false
		}
		if atomic.CompareAndSwapInt64(&ar.cursor, cur, next) {
			start := cur + alignment // skip the leading padding block
			end := start + int64(headerSize+size)
			return ar.mem[start:end:end], true
		}
		// Lost the CAS race to a concurrent allocator; retry.
	}
}

func writeHeader(full []byte, tag string, size int, mmapOrigin bool) {
	copy(full[0:4], tag)
	if mmapOrigin {
		full[4] = 1
	} else {
		full[4] = 0
	}
	v := int64(size)
	for i := 0; i < 8; i++ {
		full[8+i] = byte(v >> (8 * i))
	}
}

func readHeaderMmapFlag(full []byte) bool { return full[4] != 0 }

func (a *Allocator) accumulate(tag string, node int, size int64) {
	atomic.AddInt64(&a.totalBytes, size)

	a.mu.Lock()
	defer a.mu.Unlock()
	key := fmt.Sprintf("%s|%d", tag, node)
	a.histogram[key] += size
}

// TotalBytes returns the process-wide count of bytes allocated since
// construction (arena bump allocations are never subtracted on
// deallocation, matching the design: "arena space is not reclaimed").
func (a *Allocator) TotalBytes() int64 {
	return atomic.LoadInt64(&a.totalBytes)
}

// Histogram returns a snapshot of the (tag, node) -> bytes accounting map.
func (a *Allocator) Histogram() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int64, len(a.histogram))
	for k, v := range a.histogram {
		out[k] = v
	}
	return out
}

// Deallocate releases memory obtained from AllocateOnNode/AllocateLocal
// back to the OS if and only if it was allocated on the mmap slow path;
// arena (fast-path) allocations are a no-op, matching the design's
// deallocation contract.
func (a *Allocator) Deallocate(alloc *Allocation) error {
	if !readHeaderMmapFlag(alloc.full) {
		return nil // fast-path allocation; arena space is never reclaimed
	}
	return mmapFree(alloc.full)
}
