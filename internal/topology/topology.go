// Package topology discovers compute (socket/core/hardware-context) and
// memory (NUMA node) topology and folds them into the single combined
// Topology[numa][socket][core][context] -> logical CPU mapping that workers
// are pinned against.
//
// Grounded on the teacher's internal/numa/topology.go (sysfs discovery
// mechanics, GOOS dispatch, range-list parsing) and on
// original_source/util/affinitizer.cpp (enumerateComputeTopology,
// enumerateMemoryTopology, combineTopologies, computeSocketToNumaMapping)
// for the exact fold semantics.
package topology

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// InvalidBinding is the sentinel "unbound" value for a Binding field,
// matching Binding::InvalidBinding in the original (unsigned short)-1.
const InvalidBinding = ^uint16(0)

// Binding locates one logical CPU in the combined topology by the 4-tuple
// (numa, socket, core, context).
type Binding struct {
	NUMA    uint16
	Socket  uint16
	Core    uint16
	Context uint16
}

// NewUnboundBinding returns a Binding with every field set to InvalidBinding.
func NewUnboundBinding() Binding {
	return Binding{InvalidBinding, InvalidBinding, InvalidBinding, InvalidBinding}
}

// IsUnbound reports whether any field of b is still InvalidBinding.
func (b Binding) IsUnbound() bool {
	return b.NUMA == InvalidBinding || b.Socket == InvalidBinding ||
		b.Core == InvalidBinding || b.Context == InvalidBinding
}

// ComputeTopology groups logical CPUs by socket -> core -> hardware context.
// Socket, core and context indices are dense (0-based, contiguous) within
// their parent.
type ComputeTopology struct {
	// Sockets[socket][core] = list of logical CPU ids, one per context.
	Sockets [][][]int
}

// MemoryTopology enumerates, per NUMA node, the logical CPUs resident on it.
type MemoryTopology struct {
	NodeCPUs [][]int
}

// Topology is the combined mapping Topology[numa][socket][core][context] ->
// logical CPU id, plus the number of entries at each level.
type Topology struct {
	Mapping [][][][]uint16 // [numa][socket][core][context] -> cpu id

	NumaCount   int
	SocketCount int
	CoreCount   int // per socket, uniform across sockets in this model
	ContextCount int // per core, uniform across cores in this model
}

// Discover builds the combined Topology for the current host. It tries the
// native Linux sysfs probe first and falls back to a single-socket,
// all-CPUs-are-cores model on any other platform or on probe failure,
// exactly as the design mandates for "enumeration is unsupported."
func Discover(logger *logrus.Logger) (*Topology, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var compute *ComputeTopology
	var memory *MemoryTopology
	var err error

	if runtime.GOOS == "linux" {
		compute, memory, err = discoverLinux()
		if err != nil {
			logger.WithError(err).Warn("topology: native discovery failed, falling back to single-socket model")
			compute, memory = fallbackTopology()
		}
	} else {
		logger.WithField("os", runtime.GOOS).Info("topology: no native probe for this platform, using single-socket model")
		compute, memory = fallbackTopology()
	}

	return combine(compute, memory)
}

// fallbackTopology reports every visible CPU as a single-context core on one
// socket, all homed on NUMA node 0 -- the design's documented fallback when
// topology enumeration is unsupported.
func fallbackTopology() (*ComputeTopology, *MemoryTopology) {
	n := runtime.NumCPU()
	cores := make([][]int, n)
	cpus := make([]int, n)
	for i := 0; i < n; i++ {
		cores[i] = []int{i}
		cpus[i] = i
	}
	return &ComputeTopology{Sockets: [][][]int{cores}},
		&MemoryTopology{NodeCPUs: [][]int{cpus}}
}

// discoverLinux reads /sys/devices/system/node for memory topology and
// /sys/devices/system/cpu for compute topology (package id / core id /
// thread sibling lists), folding identical higher-level identifiers into
// shared parents as the design requires.
func discoverLinux() (*ComputeTopology, *MemoryTopology, error) {
	memory, err := discoverLinuxMemory()
	if err != nil {
		return nil, nil, err
	}
	compute, err := discoverLinuxCompute()
	if err != nil {
		return nil, nil, err
	}
	return compute, memory, nil
}

func discoverLinuxMemory() (*MemoryTopology, error) {
	const nodeBase = "/sys/devices/system/node"
	entries, err := os.ReadDir(nodeBase)
	if err != nil {
		return nil, fmt.Errorf("topology: reading %s: %w", nodeBase, err)
	}

	var nodeIDs []int
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node"))
		if err != nil {
			continue
		}
		nodeIDs = append(nodeIDs, id)
	}
	if len(nodeIDs) == 0 {
		return nil, fmt.Errorf("topology: no NUMA nodes found under %s", nodeBase)
	}
	sort.Ints(nodeIDs)

	mt := &MemoryTopology{NodeCPUs: make([][]int, len(nodeIDs))}
	for i, id := range nodeIDs {
		cpulistPath := filepath.Join(nodeBase, fmt.Sprintf("node%d", id), "cpulist")
		data, err := os.ReadFile(cpulistPath)
		if err != nil {
			return nil, fmt.Errorf("topology: reading %s: %w", cpulistPath, err)
		}
		mt.NodeCPUs[i] = parseCPUList(strings.TrimSpace(string(data)))
	}
	return mt, nil
}

// discoverLinuxCompute reads per-CPU package/core identifiers from sysfs and
// folds CPUs sharing a (package, core) pair into hardware contexts of the
// same core, and cores sharing a package into the same socket.
func discoverLinuxCompute() (*ComputeTopology, error) {
	const cpuBase = "/sys/devices/system/cpu"
	entries, err := os.ReadDir(cpuBase)
	if err != nil {
		return nil, fmt.Errorf("topology: reading %s: %w", cpuBase, err)
	}

	type cpuloc struct {
		cpu     int
		pkg     int
		coreKey string // unique key combining package + core id
	}
	var locs []cpuloc

	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		cpuID, err := strconv.Atoi(strings.TrimPrefix(name, "cpu"))
		if err != nil {
			continue
		}
		topoDir := filepath.Join(cpuBase, name, "topology")
		pkg, err := readIntFile(filepath.Join(topoDir, "physical_package_id"))
		if err != nil {
			continue
		}
		core, err := readIntFile(filepath.Join(topoDir, "core_id"))
		if err != nil {
			continue
		}
		locs = append(locs, cpuloc{cpu: cpuID, pkg: pkg, coreKey: fmt.Sprintf("%d:%d", pkg, core)})
	}
	if len(locs) == 0 {
		return nil, fmt.Errorf("topology: no CPU topology information found under %s", cpuBase)
	}

	sort.Slice(locs, func(i, j int) bool { return locs[i].cpu < locs[j].cpu })

	pkgIndex := map[int]int{}
	var sockets [][][]int
	coreIndex := map[string]int{} // coreKey -> (socket, core) flattened lookup via nested map below
	socketCoreIndex := map[int]map[string]int{}

	for _, l := range locs {
		si, ok := pkgIndex[l.pkg]
		if !ok {
			si = len(sockets)
			pkgIndex[l.pkg] = si
			sockets = append(sockets, nil)
			socketCoreIndex[si] = map[string]int{}
		}
		ci, ok := socketCoreIndex[si][l.coreKey]
		if !ok {
			ci = len(sockets[si])
			socketCoreIndex[si][l.coreKey] = ci
			sockets[si] = append(sockets[si], nil)
		}
		sockets[si][ci] = append(sockets[si][ci], l.cpu)
		coreIndex[l.coreKey] = ci
	}

	return &ComputeTopology{Sockets: sockets}, nil
}

func readIntFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, fmt.Errorf("topology: empty file %s", path)
	}
	return strconv.Atoi(strings.TrimSpace(sc.Text()))
}

// parseCPUList parses a Linux sysfs CPU list like "0-3,8,10-11" into a
// sorted slice of individual CPU ids.
func parseCPUList(s string) []int {
	var out []int
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, errLo := strconv.Atoi(bounds[0])
			hi, errHi := strconv.Atoi(bounds[1])
			if errLo != nil || errHi != nil {
				continue
			}
			for i := lo; i <= hi; i++ {
				out = append(out, i)
			}
		} else {
			v, err := strconv.Atoi(part)
			if err != nil {
				continue
			}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// combine intersects each socket's CPU set against each NUMA node's CPU set
// to build the 4-level Topology, per the design's "combined topology"
// algorithm. A socket whose CPUs span more than one NUMA node is a
// configuration error -- computeSocketToNumaMapping's invariant in the
// original.
func combine(compute *ComputeTopology, memory *MemoryTopology) (*Topology, error) {
	cpuToNode := map[int]int{}
	for nodeIdx, cpus := range memory.NodeCPUs {
		for _, cpu := range cpus {
			cpuToNode[cpu] = nodeIdx
		}
	}

	socketToNode := map[int]int{}
	for si, cores := range compute.Sockets {
		nodeForSocket := -1
		for _, ctxs := range cores {
			for _, cpu := range ctxs {
				node, ok := cpuToNode[cpu]
				if !ok {
					continue
				}
				if nodeForSocket == -1 {
					nodeForSocket = node
				} else if nodeForSocket != node {
					return nil, fmt.Errorf("topology: socket %d maps to more than one NUMA node (%d and %d)", si, nodeForSocket, node)
				}
			}
		}
		if nodeForSocket == -1 {
			nodeForSocket = 0
		}
		socketToNode[si] = nodeForSocket
	}

	numaCount := len(memory.NodeCPUs)
	socketCount := len(compute.Sockets)
	coreCount := 0
	contextCount := 0
	for _, cores := range compute.Sockets {
		if len(cores) > coreCount {
			coreCount = len(cores)
		}
		for _, ctxs := range cores {
			if len(ctxs) > contextCount {
				contextCount = len(ctxs)
			}
		}
	}

	mapping := make([][][][]uint16, numaCount)
	for n := range mapping {
		mapping[n] = make([][][]uint16, socketCount)
	}

	for si, cores := range compute.Sockets {
		node := socketToNode[si]
		mapping[node][si] = make([][]uint16, len(cores))
		for ci, ctxs := range cores {
			mapping[node][si][ci] = make([]uint16, len(ctxs))
			for xi, cpu := range ctxs {
				mapping[node][si][ci][xi] = uint16(cpu)
			}
		}
	}

	return &Topology{
		Mapping:      mapping,
		NumaCount:    numaCount,
		SocketCount:  socketCount,
		CoreCount:    coreCount,
		ContextCount: contextCount,
	}, nil
}

// Resolve looks up the logical CPU id for a Binding. It returns an error if
// the binding is unbound or any index is out of range for the topology --
// the design's "fails with InvalidBinding if any index is out of range or
// unbound."
func (t *Topology) Resolve(b Binding) (uint16, error) {
	if b.IsUnbound() {
		return 0, fmt.Errorf("topology: binding is not fully specified: %+v", b)
	}
	if int(b.NUMA) >= len(t.Mapping) {
		return 0, fmt.Errorf("topology: numa index %d out of range (have %d nodes)", b.NUMA, len(t.Mapping))
	}
	sockets := t.Mapping[b.NUMA]
	if int(b.Socket) >= len(sockets) {
		return 0, fmt.Errorf("topology: socket index %d out of range for numa %d (have %d sockets)", b.Socket, b.NUMA, len(sockets))
	}
	cores := sockets[b.Socket]
	if int(b.Core) >= len(cores) {
		return 0, fmt.Errorf("topology: core index %d out of range for numa %d socket %d (have %d cores)", b.Core, b.NUMA, b.Socket, len(cores))
	}
	ctxs := cores[b.Core]
	if int(b.Context) >= len(ctxs) {
		return 0, fmt.Errorf("topology: context index %d out of range for numa %d socket %d core %d (have %d contexts)", b.Context, b.NUMA, b.Socket, b.Core, len(ctxs))
	}
	return ctxs[b.Context], nil
}
