package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis server. Redis handles per-key TTL
// natively, so Put maps to SET with expiration and prefix scans use SCAN
// with a MATCH glob.
type RedisStore struct {
	client *redis.Client
	config RedisStoreConfig
	closed atomic.Bool
}

// RedisStoreConfig holds Redis connection configuration.
type RedisStoreConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password, if the server requires one.
	Password string

	// DB is the logical database number.
	DB int

	// OpTimeout bounds each store operation.
	// Default: 5 seconds.
	OpTimeout time.Duration

	// ScanCount is the COUNT hint passed to SCAN.
	// Default: 100.
	ScanCount int64
}

// DefaultRedisStoreConfig returns configuration with sensible defaults.
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		Addr:      "localhost:6379",
		OpTimeout: 5 * time.Second,
		ScanCount: 100,
	}
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultRedisStoreConfig().Addr
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultRedisStoreConfig().OpTimeout
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = DefaultRedisStoreConfig().ScanCount
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, config: cfg}, nil
}

func (s *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.OpTimeout)
}

// Get retrieves a value by key.
func (s *RedisStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := s.opContext()
	defer cancel()

	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Put stores a value with optional TTL.
func (s *RedisStore) Put(key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateTTL(ttl); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *RedisStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys returns all keys beginning with the given prefix. Uses SCAN rather
// than KEYS so large keyspaces do not block the server.
func (s *RedisStore) Keys(prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := s.opContext()
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", s.config.ScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// Close shuts down the store.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
