package dedup

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestKeepaliveRefreshesTTL(t *testing.T) {
	d, _ := newTestDedup(t, Config{TTL: 120 * time.Millisecond, MaxRetries: 3})
	fp := testFingerprint("a.xlsx")
	d.Register("T1", fp)
	d.UpdateStatus("T1", StatusProcessing, nil, "")

	k := NewKeepalive(d, "T1", 40*time.Millisecond)
	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Without refreshes the record would expire at 120ms
	time.Sleep(300 * time.Millisecond)

	if !d.CheckDuplicate(fp).Found() {
		t.Error("Record should still be live while keepalive runs")
	}

	if err := k.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestKeepaliveStopsOnTerminal(t *testing.T) {
	d, _ := newTestDedup(t, DefaultConfig())
	fp := testFingerprint("a.xlsx")
	d.Register("T1", fp)
	d.UpdateStatus("T1", StatusProcessing, nil, "")

	k := NewKeepalive(d, "T1", 20*time.Millisecond)
	k.Start(context.Background())

	d.UpdateStatus("T1", StatusCompleted, json.RawMessage(`{}`), "")

	// The loop notices the terminal state on its next tick and exits
	time.Sleep(80 * time.Millisecond)

	if err := k.Stop(); err != ErrNotStarted {
		t.Errorf("Expected ErrNotStarted after self-stop, got %v", err)
	}
}

func TestKeepaliveDoubleStart(t *testing.T) {
	d, _ := newTestDedup(t, DefaultConfig())
	d.Register("T1", testFingerprint("a.xlsx"))

	k := NewKeepalive(d, "T1", time.Second)
	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := k.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
	k.Stop()
}

func TestKeepaliveStopWithoutStart(t *testing.T) {
	d, _ := newTestDedup(t, DefaultConfig())
	k := NewKeepalive(d, "T1", time.Second)
	if err := k.Stop(); err != ErrNotStarted {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}
}

func TestKeepaliveContextCancel(t *testing.T) {
	d, _ := newTestDedup(t, DefaultConfig())
	d.Register("T1", testFingerprint("a.xlsx"))

	ctx, cancel := context.WithCancel(context.Background())
	k := NewKeepalive(d, "T1", 20*time.Millisecond)
	k.Start(ctx)

	cancel()
	time.Sleep(50 * time.Millisecond)

	if err := k.Stop(); err != ErrNotStarted {
		t.Errorf("Expected loop to exit on context cancel, got %v", err)
	}
}
