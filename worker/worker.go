// Package worker runs work functions for submissions the deduplication
// layer accepted, reporting their lifecycle back as status updates. It is a
// reference dispatcher: any queue consumer or HTTP handler honoring the
// same contract (mark processing, run, mark completed or failed) can stand
// in for it.
package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/supplierflow/dedupkit/dedup"
	"github.com/supplierflow/dedupkit/logging"
)

// Common errors.
var (
	ErrStopped = stderrors.New("runner stopped")
	ErrNilWork = stderrors.New("work function required")
)

// WorkFunc is the unit of work guarded by deduplication. It receives the
// task id and the file path, and returns an opaque result payload. The
// dedup layer never inspects the payload or the error beyond storing them.
type WorkFunc func(ctx context.Context, taskID, filePath string) (json.RawMessage, error)

// Config holds runner parameters.
type Config struct {
	// Concurrency is the number of worker goroutines.
	// Default: 4.
	Concurrency int

	// QueueSize is the dispatch buffer.
	// Default: 64.
	QueueSize int

	// KeepaliveInterval, when positive, refreshes each running task's TTL
	// at this interval so long work never expires mid-flight.
	KeepaliveInterval time.Duration
}

// DefaultConfig returns the standard runner parameters.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		QueueSize:   64,
	}
}

type job struct {
	taskID   string
	filePath string
}

// Runner executes accepted submissions on a bounded worker pool.
type Runner struct {
	submitter *dedup.Submitter
	dedup     *dedup.Deduplicator
	work      WorkFunc
	config    Config
	log       *logging.Logger

	jobs   chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// mu serializes Process against Stop/Drain so a job is never sent on
	// a closed queue.
	mu      sync.RWMutex
	stopped bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runner) {
		r.log = log.WithComponent("worker")
	}
}

// NewRunner creates a Runner and starts its worker goroutines.
func NewRunner(sub *dedup.Submitter, d *dedup.Deduplicator, work WorkFunc, cfg Config, opts ...Option) (*Runner, error) {
	if work == nil {
		return nil, ErrNilWork
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		submitter: sub,
		dedup:     d,
		work:      work,
		config:    cfg,
		log:       logging.New().WithComponent("worker"),
		jobs:      make(chan job, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < cfg.Concurrency; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r, nil
}

// Process submits the file and, when the submission is new work, queues it
// for execution. Duplicate decisions are returned as-is without running
// anything.
func (r *Runner) Process(filePath, userID string) (dedup.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return dedup.Decision{}, ErrStopped
	}

	decision, err := r.submitter.Submit(filePath, userID)
	if err != nil {
		return dedup.Decision{}, err
	}
	if decision.IsDuplicate {
		return decision, nil
	}

	select {
	case r.jobs <- job{taskID: decision.TaskID, filePath: filePath}:
	case <-r.ctx.Done():
		return dedup.Decision{}, ErrStopped
	}
	return decision, nil
}

// worker drains the job queue.
func (r *Runner) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case j, ok := <-r.jobs:
			if !ok {
				return
			}
			r.execute(j)
		}
	}
}

// execute runs one job through its full lifecycle.
func (r *Runner) execute(j job) {
	r.dedup.UpdateStatus(j.taskID, dedup.StatusProcessing, nil, "")

	var keepalive *dedup.Keepalive
	if r.config.KeepaliveInterval > 0 {
		keepalive = dedup.NewKeepalive(r.dedup, j.taskID, r.config.KeepaliveInterval)
		_ = keepalive.Start(r.ctx)
	}

	result, err := r.runWork(j)

	if keepalive != nil {
		_ = keepalive.Stop()
	}

	if err != nil {
		r.log.Warn("task failed", map[string]interface{}{
			"task_id": j.taskID, "error": err.Error(),
		})
		r.dedup.UpdateStatus(j.taskID, dedup.StatusFailed, nil, err.Error())
		return
	}

	r.dedup.UpdateStatus(j.taskID, dedup.StatusCompleted, result, "")
	r.log.Info("task completed", map[string]interface{}{"task_id": j.taskID})
}

// runWork invokes the work function, converting panics into failures so a
// misbehaving parser cannot take the worker down.
func (r *Runner) runWork(j job) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("task panicked", map[string]interface{}{
				"task_id": j.taskID, "panic": rec,
			})
			debug.PrintStack()
			result = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.work(r.ctx, j.taskID, j.filePath)
}

// Stop rejects further jobs, cancels in-flight work contexts and waits for
// the workers to exit. Safe to call more than once.
func (r *Runner) Stop() {
	if !r.markStopped() {
		return
	}
	r.cancel()
	r.wg.Wait()
}

// Drain rejects further jobs, lets queued and in-flight work finish, then
// shuts the workers down.
func (r *Runner) Drain() {
	if !r.markStopped() {
		return
	}
	close(r.jobs)
	r.wg.Wait()
	r.cancel()
}

// markStopped flips the stopped flag, returning false if already stopped.
func (r *Runner) markStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.stopped = true
	return true
}
