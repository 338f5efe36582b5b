package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics exported by the query engine.
type Metrics struct {
	// Operator lifecycle metrics
	OperatorCalls    prometheus.CounterVec
	GetNextLatency   prometheus.HistogramVec
	GetNextFinished  prometheus.CounterVec
	OperatorPanics   prometheus.CounterVec

	// Hash table metrics
	HashTableSpills    prometheus.Counter
	HashTableBuckets   prometheus.GaugeVec
	HashTableOverflows prometheus.Counter

	// Allocator metrics
	AllocatorFastPathHits prometheus.CounterVec
	AllocatorSlowPathHits prometheus.CounterVec
	ArenaBytesAllocated   prometheus.GaugeVec

	// NUMA / affinity metrics
	WorkerCount           prometheus.Gauge
	NumaNodesActive       prometheus.Gauge
	AffinityPinFailures   prometheus.Counter

	// Query execution metrics
	QueriesStarted  prometheus.Counter
	QueriesFinished prometheus.CounterVec
	QueryDuration   prometheus.Histogram
}

// NewMetrics creates and registers Prometheus metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OperatorCalls: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operator_calls_total",
				Help:      "Total operator lifecycle calls by operator kind and call name",
			},
			[]string{"operator", "call"},
		),
		GetNextLatency: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operator_getnext_latency_seconds",
				Help:      "GetNext call latency in seconds, by operator kind",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 18),
			},
			[]string{"operator"},
		),
		GetNextFinished: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operator_getnext_finished_total",
				Help:      "Total GetNext calls that returned Finished, by operator kind",
			},
			[]string{"operator"},
		),
		OperatorPanics: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operator_state_violations_total",
				Help:      "Total operator lifecycle state-machine violations caught by the checker wrapper",
			},
			[]string{"operator"},
		),
		HashTableSpills: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hashtable_spills_total",
				Help:      "Total times a hash table bucket ran out of in-memory space and spilled",
			},
		),
		HashTableBuckets: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "hashtable_bucket_tuples",
				Help:      "Current tuple count per hash table bucket shard",
			},
			[]string{"table"},
		),
		HashTableOverflows: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hashtable_overflow_pages_total",
				Help:      "Total overflow pages allocated across all hash tables",
			},
		),
		AllocatorFastPathHits: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocator_fast_path_allocations_total",
				Help:      "Total allocations served from the per-node bump arena fast path",
			},
			[]string{"node"},
		),
		AllocatorSlowPathHits: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocator_slow_path_allocations_total",
				Help:      "Total allocations served by the slow path (arena exhausted or request above the fast-path limit)",
			},
			[]string{"node"},
		),
		ArenaBytesAllocated: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "allocator_arena_bytes_allocated",
				Help:      "Bytes currently allocated out of each NUMA node's arena",
			},
			[]string{"node"},
		),
		WorkerCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_threads",
				Help:      "Number of worker threads the engine is currently running with",
			},
		),
		NumaNodesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "numa_nodes_active",
				Help:      "Number of NUMA nodes the engine is partitioning memory across",
			},
		),
		AffinityPinFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "affinity_pin_failures_total",
				Help:      "Total failures to pin a worker thread to its assigned CPU set",
			},
		),
		QueriesStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_started_total",
				Help:      "Total query executions started",
			},
		),
		QueriesFinished: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_finished_total",
				Help:      "Total query executions finished, by outcome",
			},
			[]string{"outcome"},
		),
		QueryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Wall-clock query execution duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 18),
			},
		),
	}
}
