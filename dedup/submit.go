package dedup

import (
	"github.com/google/uuid"

	"github.com/supplierflow/dedupkit/errors"
	"github.com/supplierflow/dedupkit/fingerprint"
	"github.com/supplierflow/dedupkit/logging"
)

// DefaultTaskType is the task type fingerprinted by Submit when the
// submitter was not configured with another one.
const DefaultTaskType = "process_file"

// Decision is the outcome of an idempotent submission.
type Decision struct {
	// TaskID identifies the task the caller should track. For duplicates
	// this is the original task's ID.
	TaskID string `json:"task_id"`

	// Status of the task behind TaskID at decision time.
	Status Status `json:"status"`

	// IsDuplicate is false exactly when the caller should run the work.
	IsDuplicate bool `json:"is_duplicate"`

	// OriginalTaskID is set on duplicates, naming the prior submission.
	OriginalTaskID string `json:"original_task_id,omitempty"`

	// Result carries the cached outcome for terminal duplicates.
	Result *Result `json:"result,omitempty"`
}

// Submitter is the caller-facing facade combining fingerprinting and
// deduplication into a single submit decision.
type Submitter struct {
	dedup    *Deduplicator
	hasher   *fingerprint.Hasher
	taskType string
	newID    func() string
	log      *logging.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithHasher sets the fingerprint hasher (custom chunk size or threshold).
func WithHasher(h *fingerprint.Hasher) SubmitterOption {
	return func(s *Submitter) {
		s.hasher = h
	}
}

// WithTaskType overrides the task type used for fingerprinting.
func WithTaskType(taskType string) SubmitterOption {
	return func(s *Submitter) {
		s.taskType = taskType
	}
}

// WithIDGenerator sets a custom task ID generator.
func WithIDGenerator(gen func() string) SubmitterOption {
	return func(s *Submitter) {
		s.newID = gen
	}
}

// WithSubmitterLogger sets the logger.
func WithSubmitterLogger(log *logging.Logger) SubmitterOption {
	return func(s *Submitter) {
		s.log = log.WithComponent("submit")
	}
}

// NewSubmitter creates a Submitter over the given Deduplicator.
func NewSubmitter(d *Deduplicator, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		dedup:    d,
		hasher:   fingerprint.NewHasher(fingerprint.DefaultHasherConfig()),
		taskType: DefaultTaskType,
		newID:    uuid.NewString,
		log:      logging.New().WithComponent("submit"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit decides whether processing filePath for userID is new work or a
// duplicate. The only error it returns is a failure to fingerprint the
// file (typically NOT_FOUND); every store-side failure degrades to
// treating the submission as new, because the pipeline must keep running
// even when the dedup store is down.
//
// For a failed prior attempt within its retry budget, Submit consumes one
// retry attempt and mints a brand-new task under the same dedup key (a
// soft retry); the old record's slot is overwritten.
func (s *Submitter) Submit(filePath, userID string, opts ...fingerprint.Option) (Decision, error) {
	fpOpts := append([]fingerprint.Option{fingerprint.WithUserID(userID)}, opts...)
	fp, err := s.hasher.Compute(filePath, s.taskType, fpOpts...)
	if err != nil {
		return Decision{}, err
	}

	priorRetries := 0

	lookup := s.dedup.CheckDuplicate(fp)
	switch {
	case lookup.Unavailable():
		s.log.Warn("dedup store unavailable, proceeding without deduplication", map[string]interface{}{
			"file": fp.FilePath, "error": lookup.Err.Error(),
		})

	case lookup.Found():
		existing := lookup.State
		switch existing.Status {
		case StatusCompleted:
			var result *Result
			if existing.Result != nil {
				result = &Result{Payload: existing.Result}
			}
			return s.duplicate(existing, result), nil

		case StatusPending, StatusProcessing:
			return s.duplicate(existing, nil), nil

		case StatusFailed:
			if !s.dedup.ConsumeRetryAttempt(existing.TaskID) {
				result := &Result{Err: existing.Error, Failed: true}
				return s.duplicate(existing, result), nil
			}
			// Soft retry: fall through to a fresh registration that
			// overwrites the failed record's slot.
			priorRetries = existing.RetryCount + 1
			s.log.Info("retrying failed task", map[string]interface{}{
				"failed_task_id": existing.TaskID, "file": fp.FilePath,
			})
		}
	}

	taskID := s.newID()
	if _, err := s.dedup.RegisterRetry(taskID, fp, priorRetries); err != nil {
		if errors.IsUnavailable(err) {
			s.log.Warn("failed to register task, proceeding without deduplication", map[string]interface{}{
				"task_id": taskID, "error": err.Error(),
			})
		} else {
			return Decision{}, err
		}
	}

	return Decision{
		TaskID: taskID,
		Status: StatusPending,
	}, nil
}

func (s *Submitter) duplicate(existing *TaskState, result *Result) Decision {
	return Decision{
		TaskID:         existing.TaskID,
		Status:         existing.Status,
		IsDuplicate:    true,
		OriginalTaskID: existing.TaskID,
		Result:         result,
	}
}

// GetResult returns the stored outcome for a task id, passing through to
// the deduplicator.
func (s *Submitter) GetResult(taskID string) (*Result, bool) {
	return s.dedup.GetResult(taskID)
}
