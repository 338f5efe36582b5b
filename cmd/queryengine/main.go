package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sblanas/pythia-sub001/internal/affinity"
	"github.com/sblanas/pythia-sub001/internal/config"
	"github.com/sblanas/pythia-sub001/internal/numaalloc"
	"github.com/sblanas/pythia-sub001/internal/observability"
	"github.com/sblanas/pythia-sub001/internal/topology"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	buildTime = "development"
	gitCommit = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "queryengine",
		Short: "Parallel NUMA-aware push/pull query execution engine",
		Long: `queryengine - a parallel, NUMA-aware analytical query execution engine:
- Push/pull operator lifecycle (Init/ThreadInit/ScanStart/GetNext/ScanStop/ThreadClose/Destroy)
- NUMA-partitioned hash tables and a tagged per-node allocator
- CPU-affinity-pinned worker threads
- Distributed tracing and Prometheus metrics`,
		Version: fmt.Sprintf("%s (built: %s, commit: %s)", version, buildTime, gitCommit),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logger)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("queryengine: failed to start")
	}
}

func run(configPath string, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_time": buildTime,
		"commit":     gitCommit,
	}).Info("starting query engine")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	logger.Info("metrics initialized")

	var tracer *observability.Tracer
	if cfg.EnableTracing {
		tracer, err = observability.NewTracer("queryengine", cfg.OtlpEndpoint, cfg.TraceSampleRate, logger)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize tracing, continuing without it")
		} else {
			defer tracer.Shutdown(ctx)
			logger.Info("distributed tracing initialized")
		}
	}

	var topo *topology.Topology
	workerCount := cfg.WorkerThreads
	pinFailures := 0
	if cfg.EnableNUMA {
		topo, err = topology.Discover(logger)
		if err != nil {
			logger.WithError(err).Warn("topology discovery failed, proceeding unpinned")
		} else {
			if workerCount == 0 {
				workerCount = topo.NumaCount * topo.SocketCount * topo.CoreCount * topo.ContextCount
			}
			metrics.NumaNodesActive.Set(float64(topo.NumaCount))

			if cfg.CPUAffinityEnabled {
				for n := 0; n < topo.NumaCount && n < workerCount; n++ {
					cpus := nodeCPUs(topo, n)
					if len(cpus) == 0 {
						continue
					}
					if err := affinity.SetAffinity(cpus); err != nil {
						pinFailures++
						metrics.AffinityPinFailures.Inc()
						logger.WithError(err).WithField("node", n).Warn("affinity pin failed")
					}
				}
			}
		}
	}
	if workerCount == 0 {
		workerCount = 1
	}
	metrics.WorkerCount.Set(float64(workerCount))

	nodeCount := 1
	if topo != nil && topo.NumaCount > 0 {
		nodeCount = topo.NumaCount
	}
	alloc, err := numaalloc.New(logger, nodeCount)
	if err != nil {
		return fmt.Errorf("failed to initialize allocator: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"version":            version,
			"worker_threads":     workerCount,
			"numa_enabled":       cfg.EnableNUMA,
			"affinity_pin_failures": pinFailures,
			"allocator_bytes":    alloc.TotalBytes(),
			"allocator_histogram": alloc.Histogram(),
		}
		if topo != nil {
			status["numa_nodes"] = topo.NumaCount
			status["sockets"] = topo.SocketCount
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.WithError(err).Error("status encode error")
		}
	})

	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		logger.WithField("addr", cfg.MetricsAddr).Info("starting status/metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("status/metrics server error")
		}
	}()

	logger.Info("query engine started successfully")

	<-sigChan
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("status/metrics server shutdown error")
	}

	logger.Info("shutdown complete")
	return nil
}

// nodeCPUs flattens a NUMA node's (socket, core, context) CPUs into a flat
// list suitable for affinity.SetAffinity.
func nodeCPUs(topo *topology.Topology, node int) []int {
	var cpus []int
	for _, byCore := range topo.Mapping[node] {
		for _, byContext := range byCore {
			for _, cpu := range byContext {
				cpus = append(cpus, int(cpu))
			}
		}
	}
	return cpus
}
