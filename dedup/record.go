package dedup

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/supplierflow/dedupkit/fingerprint"
)

// Status represents the lifecycle state of a registered task.
type Status string

const (
	// StatusPending indicates the task is registered but not started.
	StatusPending Status = "pending"

	// StatusProcessing indicates the work function is running.
	StatusProcessing Status = "processing"

	// StatusCompleted indicates the work finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the work failed.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Legal edges: pending→processing, pending→completed,
// pending→failed, processing→completed, processing→failed. Terminal states
// have no outgoing edges; a retried failure is a new record, never a
// reopened one.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() {
		return false
	}
	switch s {
	case StatusPending:
		return next != StatusPending
	case StatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// TaskState is the persisted record of one submission attempt. It lives in
// the store under the fingerprint's dedup key, with a companion reverse
// index entry mapping the task ID back to that key.
type TaskState struct {
	TaskID      string                  `json:"task_id"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Status      Status                  `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`

	// Result and Error are opaque to this layer: stored on terminal
	// transitions and returned verbatim to duplicate submitters.
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
}

// Age returns how long ago the record was created.
func (t *TaskState) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// Clone returns a deep copy of the record.
func (t *TaskState) Clone() *TaskState {
	clone := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		clone.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		clone.CompletedAt = &v
	}
	if t.Result != nil {
		clone.Result = make(json.RawMessage, len(t.Result))
		copy(clone.Result, t.Result)
	}
	if t.Fingerprint.Params != nil {
		params := make(map[string]string, len(t.Fingerprint.Params))
		for k, v := range t.Fingerprint.Params {
			params[k] = v
		}
		clone.Fingerprint.Params = params
	}
	return &clone
}

// decodeTaskState parses a stored record. A decode error means the record
// is corrupt and should be evicted.
func decodeTaskState(data []byte) (*TaskState, error) {
	var t TaskState
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if t.TaskID == "" || !t.Status.Valid() || t.CreatedAt.IsZero() {
		return nil, errFieldsMissing
	}
	return &t, nil
}

// errFieldsMissing marks structurally incomplete records; they are treated
// exactly like undecodable ones.
var errFieldsMissing = stderrors.New("task record missing required fields")
