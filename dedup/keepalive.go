package dedup

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"
)

// Keepalive errors.
var (
	ErrAlreadyStarted = stderrors.New("keepalive already started")
	ErrNotStarted     = stderrors.New("keepalive not started")
)

// DefaultKeepaliveInterval is used when no interval is configured.
const DefaultKeepaliveInterval = 30 * time.Second

// Keepalive periodically re-persists an in-flight task's record so its
// sliding TTL never lapses while work is actually running. It stops on its
// own once the task reaches a terminal state or its record disappears.
//
// Without a Keepalive the layer still works: a crashed worker's task stays
// visible as in-flight until the TTL reclaims it, which is the documented
// baseline behavior.
type Keepalive struct {
	dedup    *Deduplicator
	taskID   string
	interval time.Duration

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewKeepalive creates a keepalive for one task. A non-positive interval
// falls back to DefaultKeepaliveInterval.
func NewKeepalive(d *Deduplicator, taskID string, interval time.Duration) *Keepalive {
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	return &Keepalive{
		dedup:    d,
		taskID:   taskID,
		interval: interval,
	}
}

// Start begins refreshing the task's TTL at the configured interval.
// Returns ErrAlreadyStarted if already running.
func (k *Keepalive) Start(ctx context.Context) error {
	if k.running.Swap(true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	k.stopCh = make(chan struct{})
	k.doneCh = make(chan struct{})

	go k.run(ctx)
	return nil
}

// run is the refresh loop.
func (k *Keepalive) run(ctx context.Context) {
	defer close(k.doneCh)
	defer k.running.Store(false)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.stopCh:
			return
		case <-ticker.C:
			if !k.dedup.Touch(k.taskID) {
				// Terminal, expired or gone; nothing left to keep alive.
				return
			}
		}
	}
}

// Stop halts the refresh loop and waits for it to exit.
// Returns ErrNotStarted if the keepalive is not running.
func (k *Keepalive) Stop() error {
	if !k.running.Load() {
		return ErrNotStarted
	}
	select {
	case <-k.stopCh:
		// already stopping
	default:
		close(k.stopCh)
	}
	<-k.doneCh
	return nil
}
