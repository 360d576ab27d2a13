package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore implements Store using NATS JetStream KV.
//
// JetStream KV only supports a bucket-level TTL, so per-key TTL is emulated
// with an envelope carrying the expiry timestamp: Get treats an expired
// envelope as absent and deletes it, Keys filters on envelope metadata.
//
// JetStream KV keys cannot contain ':', which the dedup layer uses as its
// namespace separator. Keys are stored with ':' mapped to '.'; keys that
// already contain '.' are rejected to keep the mapping reversible.
type NATSStore struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	config NATSStoreConfig
	closed atomic.Bool
}

// NATSStoreConfig holds NATS KV store configuration.
type NATSStoreConfig struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the KV bucket name.
	Bucket string

	// MaxValueSize is the maximum value size in bytes.
	// Default: 1MB
	MaxValueSize int32

	// OpTimeout bounds each store operation.
	// Default: 5 seconds.
	OpTimeout time.Duration
}

// DefaultNATSStoreConfig returns configuration with sensible defaults.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket:       "dedup-state",
		MaxValueSize: 1024 * 1024,
		OpTimeout:    5 * time.Second,
	}
}

// envelope wraps a stored value with its logical expiry.
type envelope struct {
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix nanos; 0 means no expiry
	Data      []byte `json:"data"`
}

func (e *envelope) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() > e.ExpiresAt
}

// NewNATSStore creates a new NATS JetStream KV store.
func NewNATSStore(cfg NATSStoreConfig) (*NATSStore, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultNATSStoreConfig().Bucket
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = DefaultNATSStoreConfig().MaxValueSize
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultNATSStoreConfig().OpTimeout
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		History:      1,
		MaxValueSize: cfg.MaxValueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}

	return &NATSStore{
		conn:   cfg.Conn,
		js:     js,
		kv:     kv,
		config: cfg,
	}, nil
}

func encodeKey(key string) (string, error) {
	if strings.Contains(key, ".") {
		return "", ErrInvalidKey
	}
	return strings.ReplaceAll(key, ":", "."), nil
}

func decodeKey(stored string) string {
	return strings.ReplaceAll(stored, ".", ":")
}

func (s *NATSStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.OpTimeout)
}

// Get retrieves a value by key.
func (s *NATSStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	enc, err := encodeKey(key)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext()
	defer cancel()

	kve, err := s.kv.Get(ctx, enc)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(kve.Value(), &env); err != nil {
		return nil, fmt.Errorf("kv envelope: %w", err)
	}
	if env.expired(time.Now()) {
		_ = s.kv.Delete(ctx, enc)
		return nil, ErrNotFound
	}
	return env.Data, nil
}

// Put stores a value with optional TTL.
func (s *NATSStore) Put(key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateTTL(ttl); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	enc, err := encodeKey(key)
	if err != nil {
		return err
	}

	env := envelope{Data: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("kv envelope: %w", err)
	}

	ctx, cancel := s.opContext()
	defer cancel()

	if _, err := s.kv.Put(ctx, enc, data); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *NATSStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	enc, err := encodeKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.kv.Delete(ctx, enc); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// Keys returns all live keys beginning with the given prefix.
func (s *NATSStore) Keys(prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lister, err := s.kv.ListKeys(ctx, jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}

	var keys []string
	for stored := range lister.Keys() {
		key := decodeKey(stored)
		if HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close shuts down the store. The NATS connection is owned by the caller
// and is not closed here.
func (s *NATSStore) Close() error {
	s.closed.Store(true)
	return nil
}
