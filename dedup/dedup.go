package dedup

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/supplierflow/dedupkit/errors"
	"github.com/supplierflow/dedupkit/fingerprint"
	"github.com/supplierflow/dedupkit/logging"
	"github.com/supplierflow/dedupkit/store"
)

// reverseKeyPrefix namespaces the task-id → dedup-key index entries.
const reverseKeyPrefix = "task_id:"

// Config holds deduplication parameters. All knobs are explicit; there are
// no hidden defaults inside the logic paths.
type Config struct {
	// TTL is the deduplication memory window. Records older than this are
	// treated as absent even if the store has not physically evicted them.
	TTL time.Duration

	// MaxRetries caps how many fresh attempts a failed fingerprint gets.
	MaxRetries int
}

// DefaultConfig returns the standard deduplication window of one hour with
// three retries.
func DefaultConfig() Config {
	return Config{
		TTL:        time.Hour,
		MaxRetries: 3,
	}
}

// Deduplicator owns the task record schema and its lifecycle in the store.
// Construct one per store; there is no package-level instance.
type Deduplicator struct {
	store  store.Store
	config Config
	log    *logging.Logger
	now    func() time.Time
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(d *Deduplicator) {
		d.log = log.WithComponent("dedup")
	}
}

// WithClock sets the time source. Tests use this to simulate aging.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) {
		d.now = now
	}
}

// New creates a Deduplicator over the given store. Zero config fields fall
// back to DefaultConfig values.
func New(st store.Store, cfg Config, opts ...Option) *Deduplicator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	d := &Deduplicator{
		store:  st,
		config: cfg,
		log:    logging.New().WithComponent("dedup"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the active configuration.
func (d *Deduplicator) Config() Config {
	return d.config
}

// Lookup is the outcome of a duplicate check. Exactly one of three shapes:
// found (State set), not found (zero value), or unavailable (Err set).
// Only the caller decides whether unavailable behaves like not found.
type Lookup struct {
	// State is the live duplicate record, if one was found.
	State *TaskState

	// Err is set when the store could not be consulted.
	Err error
}

// Found reports whether a live duplicate record was found.
func (l Lookup) Found() bool {
	return l.State != nil
}

// Unavailable reports whether the store could not be consulted.
func (l Lookup) Unavailable() bool {
	return l.Err != nil
}

// CheckDuplicate looks up a live record for the fingerprint. Corrupt
// records are deleted and reported as not found (self-healing). Records
// older than the TTL are deleted, along with their reverse index, and
// reported as not found — a defensive double-check independent of the
// store's own physical eviction.
func (d *Deduplicator) CheckDuplicate(fp fingerprint.Fingerprint) Lookup {
	key := fp.Key()

	data, err := d.store.Get(key)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return Lookup{}
		}
		return Lookup{Err: errors.WrapWithCode(err, errors.CodeUnavailable, "duplicate check")}
	}

	state, err := decodeTaskState(data)
	if err != nil {
		d.log.Warn("removing corrupt task record", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
		_ = d.store.Delete(key)
		return Lookup{}
	}

	age := state.Age(d.now())
	if age > d.config.TTL {
		_ = d.store.Delete(key)
		_ = d.store.Delete(reverseKeyPrefix + state.TaskID)
		d.log.Info("removed expired task", map[string]interface{}{
			"task_id": state.TaskID, "age_seconds": int(age.Seconds()),
		})
		return Lookup{}
	}

	d.log.Info("found duplicate task", map[string]interface{}{
		"task_id": state.TaskID, "status": state.Status, "age_seconds": int(age.Seconds()),
	})
	return Lookup{State: state}
}

// Register records a new pending task under the fingerprint's dedup key and
// writes the reverse index entry, both with the configured TTL. If another
// registration for the same fingerprint raced ahead, this write replaces it
// (last-writer-wins; the layer is best-effort by contract).
func (d *Deduplicator) Register(taskID string, fp fingerprint.Fingerprint) (*TaskState, error) {
	return d.register(taskID, fp, 0)
}

// RegisterRetry records a fresh attempt for a fingerprint whose prior
// attempt failed, carrying the already-consumed retry budget into the new
// record so a soft retry cannot reset it.
func (d *Deduplicator) RegisterRetry(taskID string, fp fingerprint.Fingerprint, priorRetries int) (*TaskState, error) {
	if priorRetries < 0 {
		priorRetries = 0
	}
	return d.register(taskID, fp, priorRetries)
}

func (d *Deduplicator) register(taskID string, fp fingerprint.Fingerprint, retryCount int) (*TaskState, error) {
	if taskID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "task id required")
	}

	state := &TaskState{
		TaskID:      taskID,
		Fingerprint: fp,
		Status:      StatusPending,
		CreatedAt:   d.now(),
		RetryCount:  retryCount,
	}

	key := fp.Key()
	if err := d.persist(key, state); err != nil {
		return nil, err
	}
	if err := d.store.Put(reverseKeyPrefix+taskID, []byte(key), d.config.TTL); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "writing reverse index",
			errors.WithTaskID(taskID))
	}

	d.log.Info("registered task", map[string]interface{}{
		"task_id": taskID, "key": key,
	})
	return state, nil
}

// UpdateStatus moves a task forward in its lifecycle. Entering processing
// stamps started_at; entering a terminal status stamps completed_at and
// stores the opaque result or error. The record is re-persisted with its
// TTL reset, so a task receiving periodic updates never expires mid-flight.
// Returns false if the task is unknown, its record is gone or corrupt, or
// the transition is not a legal forward edge.
func (d *Deduplicator) UpdateStatus(taskID string, status Status, result json.RawMessage, errMsg string) bool {
	if !status.Valid() {
		d.log.Warn("rejecting unknown status", map[string]interface{}{
			"task_id": taskID, "status": status,
		})
		return false
	}

	key, state, ok := d.resolve(taskID)
	if !ok {
		d.log.Warn("task not found for status update", map[string]interface{}{
			"task_id": taskID,
		})
		return false
	}

	if !state.Status.CanTransition(status) {
		d.log.Warn("rejecting backward status transition", map[string]interface{}{
			"task_id": taskID, "from": state.Status, "to": status,
		})
		return false
	}

	now := d.now()
	state.Status = status
	switch {
	case status == StatusProcessing:
		if state.StartedAt == nil {
			state.StartedAt = &now
		}
	case status.IsTerminal():
		state.CompletedAt = &now
		if result != nil {
			state.Result = result
		}
		if errMsg != "" {
			state.Error = errMsg
		}
	}

	if err := d.persist(key, state); err != nil {
		d.log.Error("failed to persist status update", map[string]interface{}{
			"task_id": taskID, "error": err.Error(),
		})
		return false
	}
	// Slide the reverse index alongside the record so it can never expire
	// first while the record is alive.
	_ = d.store.Put(reverseKeyPrefix+taskID, []byte(key), d.config.TTL)

	d.log.Info("updated task status", map[string]interface{}{
		"task_id": taskID, "status": status,
		"elapsed_seconds": int(now.Sub(state.CreatedAt).Seconds()),
	})
	return true
}

// Result is the outcome of a terminal task as exposed to duplicate
// submitters: either an opaque payload, or an error wrapper.
type Result struct {
	Payload json.RawMessage `json:"result,omitempty"`
	Err     string          `json:"error,omitempty"`
	Failed  bool            `json:"failed,omitempty"`
}

// GetResult returns the stored outcome for a task: the payload if the task
// completed, an error wrapper if it failed, and (nil, false) while the task
// is in flight or unknown.
func (d *Deduplicator) GetResult(taskID string) (*Result, bool) {
	_, state, ok := d.resolve(taskID)
	if !ok {
		return nil, false
	}

	switch {
	case state.Status == StatusCompleted && state.Result != nil:
		return &Result{Payload: state.Result}, true
	case state.Status == StatusFailed && state.Error != "":
		return &Result{Err: state.Error, Failed: true}, true
	}
	return nil, false
}

// ConsumeRetryAttempt decides whether a task may be retried, spending one
// unit of its retry budget when it says yes. Unknown tasks are retryable
// (fail-open: there is nothing recorded to block a fresh attempt), and so
// are tasks whose record cannot be read. Completed tasks are never
// retryable. Callers must invoke this at most once per retry decision; it
// is a mutating call, not a query — see RetryBudgetRemaining for the
// read-only view.
func (d *Deduplicator) ConsumeRetryAttempt(taskID string) bool {
	key, state, ok := d.resolve(taskID)
	if !ok {
		return true
	}

	if state.Status == StatusCompleted {
		return false
	}

	if state.RetryCount >= d.config.MaxRetries {
		d.log.Warn("retry budget exhausted", map[string]interface{}{
			"task_id": taskID, "retry_count": state.RetryCount,
		})
		return false
	}

	state.RetryCount++
	if err := d.persist(key, state); err != nil {
		// The increment was lost; allowing the retry matches the
		// fail-open posture of the rest of the layer.
		d.log.Warn("failed to persist retry count", map[string]interface{}{
			"task_id": taskID, "error": err.Error(),
		})
	}
	return true
}

// RetryBudgetRemaining reports how many retry attempts are left for a task
// without consuming any. The second return is false if the task is unknown.
func (d *Deduplicator) RetryBudgetRemaining(taskID string) (int, bool) {
	_, state, ok := d.resolve(taskID)
	if !ok {
		return 0, false
	}
	if state.Status == StatusCompleted {
		return 0, true
	}
	remaining := d.config.MaxRetries - state.RetryCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CleanupExpired sweeps all fingerprint records, deleting those that are
// logically expired or undecodable, together with their reverse index
// entries. Cost scales with the number of live keys; run it as periodic
// maintenance, not on the hot path. Returns the number of records removed.
func (d *Deduplicator) CleanupExpired() (int, error) {
	keys, err := d.store.Keys(fingerprint.KeyPrefix)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeUnavailable, "scanning task records")
	}

	now := d.now()
	removed := 0
	for _, key := range keys {
		data, err := d.store.Get(key)
		if err != nil {
			continue
		}

		state, err := decodeTaskState(data)
		if err != nil {
			_ = d.store.Delete(key)
			removed++
			continue
		}

		if state.Age(now) > d.config.TTL {
			_ = d.store.Delete(key)
			_ = d.store.Delete(reverseKeyPrefix + state.TaskID)
			removed++
		}
	}

	if removed > 0 {
		d.log.Info("cleaned expired tasks", map[string]interface{}{"count": removed})
	}
	return removed, nil
}

// Stats is an aggregate snapshot of the live task records.
type Stats struct {
	Total             int            `json:"total_tasks"`
	ByStatus          map[Status]int `json:"by_status"`
	AverageAgeSeconds float64        `json:"average_age_seconds"`
	OldestTaskID      string         `json:"oldest_task,omitempty"`
	NewestTaskID      string         `json:"newest_task,omitempty"`
}

// Stats aggregates all live task records. Full scan; O(n) and intended for
// infrequent operational use.
func (d *Deduplicator) Stats() (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int)}

	keys, err := d.store.Keys(fingerprint.KeyPrefix)
	if err != nil {
		return stats, errors.WrapWithCode(err, errors.CodeUnavailable, "scanning task records")
	}

	now := d.now()
	var totalAge time.Duration
	var oldest, newest time.Time

	for _, key := range keys {
		data, err := d.store.Get(key)
		if err != nil {
			continue
		}
		state, err := decodeTaskState(data)
		if err != nil {
			continue
		}

		stats.Total++
		stats.ByStatus[state.Status]++
		totalAge += state.Age(now)

		if oldest.IsZero() || state.CreatedAt.Before(oldest) {
			oldest = state.CreatedAt
			stats.OldestTaskID = state.TaskID
		}
		if newest.IsZero() || state.CreatedAt.After(newest) {
			newest = state.CreatedAt
			stats.NewestTaskID = state.TaskID
		}
	}

	if stats.Total > 0 {
		stats.AverageAgeSeconds = (totalAge / time.Duration(stats.Total)).Seconds()
	}
	return stats, nil
}

// Touch re-persists a live, non-terminal record with a fresh TTL. Used by
// Keepalive to keep long-running work visible as in-flight. Returns false
// once the task is terminal, unknown, or unreadable.
func (d *Deduplicator) Touch(taskID string) bool {
	key, state, ok := d.resolve(taskID)
	if !ok {
		return false
	}
	if state.Status.IsTerminal() {
		return false
	}
	if err := d.persist(key, state); err != nil {
		return false
	}
	_ = d.store.Put(reverseKeyPrefix+taskID, []byte(key), d.config.TTL)
	return true
}

// resolve maps a task ID through the reverse index to its dedup key and
// decoded record. An orphaned reverse entry (forward record expired) or a
// corrupt record resolves to not-ok.
func (d *Deduplicator) resolve(taskID string) (string, *TaskState, bool) {
	keyBytes, err := d.store.Get(reverseKeyPrefix + taskID)
	if err != nil {
		return "", nil, false
	}
	key := string(keyBytes)

	data, err := d.store.Get(key)
	if err != nil {
		return "", nil, false
	}

	state, err := decodeTaskState(data)
	if err != nil {
		_ = d.store.Delete(key)
		return "", nil, false
	}

	// The forward record may belong to a newer registration for the same
	// fingerprint (soft retry overwrote the slot). The stale reverse entry
	// then points at someone else's record; treat as not found.
	if state.TaskID != taskID {
		return "", nil, false
	}

	return key, state, true
}

// persist writes a record under its dedup key with the configured TTL.
func (d *Deduplicator) persist(key string, state *TaskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeInternal, "encoding task record")
	}
	if err := d.store.Put(key, data, d.config.TTL); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "writing task record",
			errors.WithTaskID(state.TaskID))
	}
	return nil
}
