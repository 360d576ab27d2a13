// Package store defines the key-value contract the deduplication layer
// persists through, plus in-memory, Redis and NATS JetStream backends.
// Each operation is atomic at single-key granularity; nothing here offers
// multi-key transactions or compare-and-swap, and the layer above is
// written to tolerate that.
package store

import (
	"errors"
	"strings"
	"time"
)

// Common errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrClosed     = errors.New("store closed")
	ErrInvalidKey = errors.New("invalid key")
	ErrInvalidTTL = errors.New("invalid TTL")
)

// Store provides TTL-bounded key-value storage.
type Store interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(key string) ([]byte, error)

	// Put stores a value with an optional TTL.
	// If ttl is 0, the key never expires.
	Put(key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	// Returns nil if the key does not exist.
	Delete(key string) error

	// Keys returns all live keys beginning with the given prefix.
	Keys(prefix string) ([]string, error)

	// Close shuts down the store and releases resources.
	Close() error
}

// ValidateKey checks if a key is valid.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > 1024 {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < 0x21 || c == 0x7F {
			return ErrInvalidKey
		}
	}
	return nil
}

// ValidateTTL checks if a TTL is valid.
func ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	return nil
}

// HasPrefix reports whether key falls under prefix. An empty prefix matches
// every key.
func HasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
