package store

import (
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore implements Store using in-memory storage. Useful for tests
// and single-process deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]*entry
	closed atomic.Bool

	janitor *time.Ticker
	done    chan struct{}
}

type entry struct {
	value   []byte
	expires time.Time // Zero means no expiry
}

// NewMemoryStore creates a new in-memory store. A background janitor
// removes physically expired entries once per second; reads also treat
// expired entries as absent, so the janitor is purely reclamation.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data:    make(map[string]*entry),
		janitor: time.NewTicker(time.Second),
		done:    make(chan struct{}),
	}
	go s.janitorLoop()
	return s
}

func (s *MemoryStore) janitorLoop() {
	for {
		select {
		case <-s.janitor.C:
			s.reap()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.data {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(s.data, key)
		}
	}
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		return nil, ErrNotFound
	}

	// Return a copy to prevent mutation
	val := make([]byte, len(e.value))
	copy(val, e.value)
	return val, nil
}

// Put stores a value with optional TTL.
func (s *MemoryStore) Put(key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateTTL(ttl); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	val := make([]byte, len(value))
	copy(val, value)

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = &entry{value: val, expires: expires}
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Keys returns all live keys beginning with the given prefix.
func (s *MemoryStore) Keys(prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var keys []string
	for key, e := range s.data {
		if !e.expires.IsZero() && now.After(e.expires) {
			continue
		}
		if HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close shuts down the store.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)
	s.janitor.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
