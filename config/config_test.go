package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dedupkit.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
	if cfg.Dedup.TTL() != time.Hour {
		t.Errorf("Expected 1h default TTL, got %v", cfg.Dedup.TTL())
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Expected memory backend default, got %s", cfg.Store.Backend)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[dedup]
ttl_seconds = 120
max_retries = 5

[store]
backend = "redis"
redis_addr = "redis.internal:6379"

[worker]
concurrency = 8
keepalive_interval_seconds = 15
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Dedup.TTL() != 2*time.Minute {
		t.Errorf("Expected 2m TTL, got %v", cfg.Dedup.TTL())
	}
	if cfg.Dedup.MaxRetries != 5 {
		t.Errorf("Expected 5 retries, got %d", cfg.Dedup.MaxRetries)
	}
	if cfg.Store.Backend != BackendRedis || cfg.Store.RedisAddr != "redis.internal:6379" {
		t.Errorf("Redis settings not loaded: %+v", cfg.Store)
	}
	if cfg.Worker.KeepaliveInterval() != 15*time.Second {
		t.Errorf("Expected 15s keepalive, got %v", cfg.Worker.KeepaliveInterval())
	}

	// Unset sections keep defaults
	if cfg.Hash.ChunkSize != 8*1024 {
		t.Errorf("Expected default chunk size, got %d", cfg.Hash.ChunkSize)
	}
}

func TestLoadFileInvalidBackend(t *testing.T) {
	path := writeConfig(t, `
[store]
backend = "etcd"
`)
	if _, err := LoadFile(path); err == nil {
		t.Error("Unknown backend should fail validation")
	}
}

func TestLoadFileBadTTL(t *testing.T) {
	path := writeConfig(t, `
[dedup]
ttl_seconds = -5
`)
	if _, err := LoadFile(path); err == nil {
		t.Error("Negative TTL should fail validation")
	}
}

func TestLoadFileThresholdBelowChunk(t *testing.T) {
	path := writeConfig(t, `
[hash]
chunk_size = 8192
large_file_threshold = 100
`)
	if _, err := LoadFile(path); err == nil {
		t.Error("Threshold below chunk size should fail validation")
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeConfig(t, `[dedup`)
	if _, err := LoadFile(path); err == nil {
		t.Error("Malformed TOML should fail")
	}
}
