package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error
// chain. If err is nil, Wrap returns nil. If err is already a dedupkit
// Error, its code, category and task ID are preserved.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var derr *Error
	if errors.As(err, &derr) {
		wrapped := &Error{
			code:      derr.code,
			category:  derr.category,
			message:   message,
			cause:     err,
			retryable: derr.retryable,
			taskID:    derr.taskID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, message, append(opts, WithCause(err))...)
	}

	return New(CodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable. Non-dedupkit errors are
// treated as not retryable.
func IsRetryable(err error) bool {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Retryable()
	}
	return false
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}

// IsUnavailable reports whether err carries CodeUnavailable.
func IsUnavailable(err error) bool {
	return Is(err, CodeUnavailable)
}

// IsCorruption reports whether err carries CodeCorruption.
func IsCorruption(err error) bool {
	return Is(err, CodeCorruption)
}

// IsRetryExhausted reports whether err carries CodeRetryExhausted.
func IsRetryExhausted(err error) bool {
	return Is(err, CodeRetryExhausted)
}
