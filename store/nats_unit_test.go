package store

// Unit tests for the NATS backend internals that do not need a server.
// Integration coverage against a live JetStream instance lives outside
// the default test run.

import (
	"testing"
	"time"
)

func TestEncodeKey(t *testing.T) {
	enc, err := encodeKey("task_fingerprint:abc123")
	if err != nil {
		t.Fatalf("encodeKey failed: %v", err)
	}
	if enc != "task_fingerprint.abc123" {
		t.Errorf("Expected colon mapped to dot, got %q", enc)
	}
	if decodeKey(enc) != "task_fingerprint:abc123" {
		t.Errorf("decodeKey did not round-trip: %q", decodeKey(enc))
	}
}

func TestEncodeKeyRejectsDots(t *testing.T) {
	if _, err := encodeKey("has.dot"); err != ErrInvalidKey {
		t.Errorf("Keys with dots should be rejected, got %v", err)
	}
}

func TestEnvelopeExpiry(t *testing.T) {
	now := time.Now()

	env := envelope{Data: []byte("v")}
	if env.expired(now) {
		t.Error("Envelope without expiry should never expire")
	}

	env.ExpiresAt = now.Add(-time.Second).UnixNano()
	if !env.expired(now) {
		t.Error("Envelope past its expiry should be expired")
	}

	env.ExpiresAt = now.Add(time.Second).UnixNano()
	if env.expired(now) {
		t.Error("Envelope before its expiry should not be expired")
	}
}

func TestNATSStoreRequiresConn(t *testing.T) {
	if _, err := NewNATSStore(NATSStoreConfig{}); err == nil {
		t.Error("NewNATSStore without a connection should fail")
	}
}

func TestDefaultConfigs(t *testing.T) {
	n := DefaultNATSStoreConfig()
	if n.Bucket == "" || n.MaxValueSize <= 0 || n.OpTimeout <= 0 {
		t.Errorf("NATS defaults incomplete: %+v", n)
	}

	r := DefaultRedisStoreConfig()
	if r.Addr == "" || r.OpTimeout <= 0 || r.ScanCount <= 0 {
		t.Errorf("Redis defaults incomplete: %+v", r)
	}
}
