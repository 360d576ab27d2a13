package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: store unavailable, network timeouts.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: missing input file, retry budget exhausted.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the failure modes of the deduplication layer.
const (
	// CodeNotFound means the input file or requested record does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUnavailable means a store operation failed; callers fail open.
	CodeUnavailable ErrorCode = "UNAVAILABLE"

	// CodeCorruption means a stored record could not be decoded.
	CodeCorruption ErrorCode = "CORRUPTION"

	// CodeRetryExhausted means the retry budget for a task is spent.
	CodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"

	// CodeInvalidInput means a malformed argument (empty key, bad status).
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeTimeout means an operation exceeded its deadline.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeInternal means an unexpected internal error.
	CodeInternal ErrorCode = "INTERNAL"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case CodeUnavailable, CodeTimeout:
		return CategoryTransient
	case CodeNotFound, CodeRetryExhausted, CodeInvalidInput:
		return CategoryPermanent
	case CodeCorruption, CodeInternal:
		return CategoryInternal
	default:
		return CategoryInternal
	}
}
