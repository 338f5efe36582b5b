// Package instrument wraps an operator.Operator with wall-clock and
// runtime-stat based counters standing in for the original's hardware
// performance-counter instrumentation (original_source/perfcounters.cpp),
// which required privileged access to CPU PMU registers -- out of scope
// for a portable Go engine, per SPEC_FULL.md §9.H. Counters are exported
// through internal/observability's Prometheus registry rather than the
// original's CSV dump.
package instrument

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/sblanas/pythia-sub001/engine/page"
	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/observability"
	"github.com/sblanas/pythia-sub001/internal/operator"
)

// maxTrackedThreads mirrors the original's compile-time MAX_THREADS sizing
// for perf counters. Nothing reads it: per-thread stats live in a map keyed
// by thread id, and the number of tracked threads is not capped.
const maxTrackedThreads = 256

// Stats accumulates timing and allocation counters for one thread's scan.
type Stats struct {
	GetNextCalls   uint64
	ReadyCalls     uint64
	FinishedCalls  uint64
	GetNextElapsed time.Duration
	BytesProduced  uint64
	HeapAllocDelta uint64
}

// Instrument wraps inner, timing every GetNext call and tallying page
// throughput, without altering the lifecycle protocol's observable
// results.
type Instrument struct {
	inner   operator.Operator
	name    string
	metrics *observability.Metrics

	mu    sync.Mutex
	stats map[uint16]*Stats
}

// Wrap returns an Instrument around inner.
func Wrap(name string, inner operator.Operator) *Instrument {
	return WrapWithMetrics(name, inner, nil)
}

// WrapWithMetrics is Wrap plus a *observability.Metrics to record the
// getNext latency histogram; pass nil to skip metrics, exactly as Wrap does.
func WrapWithMetrics(name string, inner operator.Operator, metrics *observability.Metrics) *Instrument {
	return &Instrument{inner: inner, name: name, metrics: metrics, stats: make(map[uint16]*Stats)}
}

func (in *Instrument) statFor(threadID uint16) *Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	s, ok := in.stats[threadID]
	if !ok {
		s = &Stats{}
		in.stats[threadID] = s
	}
	return s
}

// Stats returns a copy of the accumulated counters for threadID, or the
// zero value if that thread never called GetNext.
func (in *Instrument) Stats(threadID uint16) Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	if s, ok := in.stats[threadID]; ok {
		return *s
	}
	return Stats{}
}

func (in *Instrument) Init(ctx context.Context) error       { return in.inner.Init(ctx) }
func (in *Instrument) ThreadInit(threadID uint16) error     { return in.inner.ThreadInit(threadID) }
func (in *Instrument) ThreadClose(threadID uint16) error    { return in.inner.ThreadClose(threadID) }
func (in *Instrument) Destroy() error                       { return in.inner.Destroy() }
func (in *Instrument) OutSchema() *schema.Schema             { return in.inner.OutSchema() }

func (in *Instrument) ScanStart(threadID uint16, ip *page.Page, is *schema.Schema) (operator.ResultCode, error) {
	return in.inner.ScanStart(threadID, ip, is)
}

func (in *Instrument) ScanStop(threadID uint16) error {
	return in.inner.ScanStop(threadID)
}

func (in *Instrument) GetNext(threadID uint16) (operator.ResultCode, *page.Page) {
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)
	start := time.Now()

	rc, p := in.inner.GetNext(threadID)

	elapsed := time.Since(start)
	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	s := in.statFor(threadID)
	in.mu.Lock()
	s.GetNextCalls++
	s.GetNextElapsed += elapsed
	if memAfter.TotalAlloc >= memBefore.TotalAlloc {
		s.HeapAllocDelta += memAfter.TotalAlloc - memBefore.TotalAlloc
	}
	switch rc {
	case operator.Ready:
		s.ReadyCalls++
		if p != nil {
			s.BytesProduced += uint64(p.GetUsedSpace())
		}
	case operator.Finished:
		s.FinishedCalls++
	}
	in.mu.Unlock()

	if in.metrics != nil {
		in.metrics.GetNextLatency.WithLabelValues(in.name).Observe(elapsed.Seconds())
		if rc == operator.Finished {
			in.metrics.GetNextFinished.WithLabelValues(in.name).Inc()
		}
	}

	return rc, p
}

var _ operator.Operator = (*Instrument)(nil)
