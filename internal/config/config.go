// Package config loads the query engine's runtime configuration from a
// file and/or environment variables via viper, mirroring the teacher's
// config-loading shape: package-level SetDefault calls, SetConfigFile +
// ReadInConfig, AutomaticEnv + SetEnvPrefix, then Unmarshal into a tagged
// struct followed by an explicit Validate pass.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete engine configuration.
type Config struct {
	// Server settings
	BindAddr    string `mapstructure:"bind_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	// NUMA / affinity settings
	EnableNUMA         bool `mapstructure:"enable_numa"`
	CPUAffinityEnabled bool `mapstructure:"cpu_affinity_enabled"`
	WorkerThreads      int  `mapstructure:"worker_threads"`

	// Allocator settings
	ArenaBytesPerNode int64 `mapstructure:"arena_bytes_per_node"`
	FastPathMaxBytes  int64 `mapstructure:"fast_path_max_bytes"`

	// Hash table settings
	HashFunction    string `mapstructure:"hash_function"`
	HashBuckets     int    `mapstructure:"hash_buckets"`
	BucketSizeBytes int    `mapstructure:"bucket_size_bytes"`
	PartitionCount  int    `mapstructure:"partition_count"`

	// Serialization
	SerializeCompress bool `mapstructure:"serialize_compress"`

	// Observability
	EnableTracing       bool    `mapstructure:"enable_tracing"`
	OtlpEndpoint        string  `mapstructure:"otlp_endpoint"`
	TraceSampleRate     float64 `mapstructure:"trace_sample_rate"`
	MetricsNamespace    string  `mapstructure:"metrics_namespace"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`

	// Operational mode
	ReleaseMode bool `mapstructure:"release_mode"`
}

// Load loads configuration from configPath (if non-empty) and environment
// variables prefixed MARCHENGINE_, with environment taking precedence over
// the file and the file taking precedence over the defaults below.
func Load(configPath string) (*Config, error) {
	viper.SetDefault("bind_addr", ":8081")
	viper.SetDefault("metrics_addr", ":8082")
	viper.SetDefault("enable_numa", true)
	viper.SetDefault("cpu_affinity_enabled", true)
	viper.SetDefault("worker_threads", 0) // 0 = auto-detect from topology
	viper.SetDefault("arena_bytes_per_node", int64(1*1024*1024*1024))
	viper.SetDefault("fast_path_max_bytes", int64(16*1024*1024))
	viper.SetDefault("hash_function", "knuth")
	viper.SetDefault("hash_buckets", 1024)
	viper.SetDefault("bucket_size_bytes", 4096)
	viper.SetDefault("partition_count", 1)
	viper.SetDefault("serialize_compress", false)
	viper.SetDefault("enable_tracing", false)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("trace_sample_rate", 0.1)
	viper.SetDefault("metrics_namespace", "pythia_sub001")
	viper.SetDefault("health_check_interval", 30*time.Second)
	viper.SetDefault("release_mode", false)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MARCHENGINE")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks structural invariants Unmarshal cannot enforce on its
// own: enum allow-lists, positivity of sizing knobs, and power-of-two
// constraints the allocator/hash-table layers require.
func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("bind_addr is required")
	}

	if c.WorkerThreads < 0 {
		return fmt.Errorf("worker_threads must be >= 0 (0 means auto-detect)")
	}

	if c.ArenaBytesPerNode <= 0 {
		return fmt.Errorf("arena_bytes_per_node must be > 0")
	}
	if c.FastPathMaxBytes <= 0 || c.FastPathMaxBytes > c.ArenaBytesPerNode {
		return fmt.Errorf("fast_path_max_bytes must be > 0 and <= arena_bytes_per_node")
	}

	validHashFns := map[string]bool{
		"alwayszero": true, "modulo": true, "parammodulo": true,
		"knuth": true, "range": true, "exactrange": true, "bytes": true,
		"xxhash": true, "tpchq1magic": true, "tpchorderkey": true, "willis": true,
	}
	if !validHashFns[c.HashFunction] {
		return fmt.Errorf("invalid hash_function: %s", c.HashFunction)
	}

	if c.HashBuckets <= 0 {
		return fmt.Errorf("hash_buckets must be > 0")
	}
	if c.BucketSizeBytes <= 0 {
		return fmt.Errorf("bucket_size_bytes must be > 0")
	}

	if c.PartitionCount <= 0 || c.PartitionCount&(c.PartitionCount-1) != 0 {
		return fmt.Errorf("partition_count must be a positive power of two, got %d", c.PartitionCount)
	}
	if c.PartitionCount > 4 {
		return fmt.Errorf("partition_count must be <= 4")
	}

	if c.EnableTracing && (c.TraceSampleRate < 0 || c.TraceSampleRate > 1) {
		return fmt.Errorf("trace_sample_rate must be within [0,1]")
	}

	return nil
}
