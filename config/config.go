// Package config loads dedupkit configuration from TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend names accepted in [store].
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Config is the full configuration surface. Every knob the dedup layer
// consults is explicit here; none of the logic paths carry hidden defaults.
type Config struct {
	Dedup  DedupConfig  `toml:"dedup"`
	Hash   HashConfig   `toml:"hash"`
	Store  StoreConfig  `toml:"store"`
	Worker WorkerConfig `toml:"worker"`
	Log    LogConfig    `toml:"log"`
}

// DedupConfig controls the deduplication window and retry budget.
type DedupConfig struct {
	// TTLSeconds is the deduplication memory window.
	TTLSeconds int `toml:"ttl_seconds"`

	// MaxRetries caps fresh attempts for a failed fingerprint.
	MaxRetries int `toml:"max_retries"`
}

// TTL returns the window as a duration.
func (d DedupConfig) TTL() time.Duration {
	return time.Duration(d.TTLSeconds) * time.Second
}

// HashConfig controls file fingerprint hashing.
type HashConfig struct {
	// ChunkSize is the sample window for large files, in bytes.
	ChunkSize int64 `toml:"chunk_size"`

	// LargeFileThreshold is the size above which sampling kicks in.
	LargeFileThreshold int64 `toml:"large_file_threshold"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Backend is one of "memory", "redis", "nats".
	Backend string `toml:"backend"`

	// Redis settings, used when Backend is "redis".
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	// NATS settings, used when Backend is "nats".
	NATSURL    string `toml:"nats_url"`
	NATSBucket string `toml:"nats_bucket"`
}

// WorkerConfig controls the reference runner.
type WorkerConfig struct {
	Concurrency              int `toml:"concurrency"`
	QueueSize                int `toml:"queue_size"`
	KeepaliveIntervalSeconds int `toml:"keepalive_interval_seconds"`
}

// KeepaliveInterval returns the keepalive period; zero disables it.
func (w WorkerConfig) KeepaliveInterval() time.Duration {
	return time.Duration(w.KeepaliveIntervalSeconds) * time.Second
}

// LogConfig controls console logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Dedup: DedupConfig{
			TTLSeconds: 3600,
			MaxRetries: 3,
		},
		Hash: HashConfig{
			ChunkSize:          8 * 1024,
			LargeFileThreshold: 1024 * 1024,
		},
		Store: StoreConfig{
			Backend:   BackendMemory,
			RedisAddr: "localhost:6379",
			NATSURL:   "nats://localhost:4222",
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			QueueSize:   64,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// StandardPaths returns the config file locations checked in order.
func StandardPaths() []string {
	paths := []string{"dedupkit.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dedupkit", "config.toml"))
	}
	return paths
}

// Load reads configuration from the first standard location that exists,
// falling back to Default when none does. The returned path is empty when
// defaults were used.
func Load() (Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return Config{}, path, err
			}
			return cfg, path, nil
		}
	}
	return Default(), "", nil
}

// LoadFile reads configuration from a specific file. Settings absent from
// the file keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Dedup.TTLSeconds <= 0 {
		return fmt.Errorf("dedup.ttl_seconds must be positive, got %d", c.Dedup.TTLSeconds)
	}
	if c.Dedup.MaxRetries < 0 {
		return fmt.Errorf("dedup.max_retries must not be negative, got %d", c.Dedup.MaxRetries)
	}
	if c.Hash.ChunkSize <= 0 {
		return fmt.Errorf("hash.chunk_size must be positive, got %d", c.Hash.ChunkSize)
	}
	if c.Hash.LargeFileThreshold < c.Hash.ChunkSize {
		return fmt.Errorf("hash.large_file_threshold (%d) must be at least hash.chunk_size (%d)",
			c.Hash.LargeFileThreshold, c.Hash.ChunkSize)
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendNATS:
	default:
		return fmt.Errorf("store.backend must be one of memory, redis, nats; got %q", c.Store.Backend)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	return nil
}
