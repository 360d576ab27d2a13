package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(CodeNotFound, "file missing")

	if err.Code() != CodeNotFound {
		t.Errorf("Expected code NOT_FOUND, got %s", err.Code())
	}
	if err.Category() != CategoryPermanent {
		t.Errorf("Expected permanent category, got %s", err.Category())
	}
	if err.Retryable() {
		t.Error("NOT_FOUND should not be retryable by default")
	}
	if err.Error() != "file missing" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestCategoryDefaults(t *testing.T) {
	cases := []struct {
		code      ErrorCode
		category  ErrorCategory
		retryable bool
	}{
		{CodeNotFound, CategoryPermanent, false},
		{CodeUnavailable, CategoryTransient, true},
		{CodeCorruption, CategoryInternal, false},
		{CodeRetryExhausted, CategoryPermanent, false},
		{CodeInvalidInput, CategoryPermanent, false},
		{CodeTimeout, CategoryTransient, true},
		{CodeInternal, CategoryInternal, false},
	}

	for _, c := range cases {
		err := New(c.code, "test")
		if err.Category() != c.category {
			t.Errorf("%s: expected category %s, got %s", c.code, c.category, err.Category())
		}
		if err.Retryable() != c.retryable {
			t.Errorf("%s: expected retryable=%v", c.code, c.retryable)
		}
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(CodeUnavailable, "store down", WithRetryable(false))
	if err.Retryable() {
		t.Error("Explicit retryable=false should override category default")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := New(CodeCorruption, "bad record", WithTaskID("task-1"))
	wrapped := Wrap(inner, "reading task state")

	if wrapped.Code() != CodeCorruption {
		t.Errorf("Expected wrapped code CORRUPTION, got %s", wrapped.Code())
	}
	if wrapped.TaskID() != "task-1" {
		t.Errorf("Expected task ID preserved, got %q", wrapped.TaskID())
	}
	if !stderrors.Is(wrapped, inner) {
		t.Error("Wrapped error should match inner via errors.Is")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapUnknownError(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("plain error"), "doing thing")
	if wrapped.Code() != CodeInternal {
		t.Errorf("Unknown errors should wrap as INTERNAL, got %s", wrapped.Code())
	}
}

func TestWrapWithCode(t *testing.T) {
	wrapped := WrapWithCode(fmt.Errorf("dial tcp: refused"), CodeUnavailable, "redis get")
	if !IsUnavailable(wrapped) {
		t.Error("Expected IsUnavailable to be true")
	}
	if !IsRetryable(wrapped) {
		t.Error("UNAVAILABLE should be retryable")
	}
}

func TestCodeHelpers(t *testing.T) {
	if !IsNotFound(New(CodeNotFound, "x")) {
		t.Error("IsNotFound failed")
	}
	if !IsCorruption(New(CodeCorruption, "x")) {
		t.Error("IsCorruption failed")
	}
	if !IsRetryExhausted(New(CodeRetryExhausted, "x")) {
		t.Error("IsRetryExhausted failed")
	}
	if IsNotFound(fmt.Errorf("plain")) {
		t.Error("Plain errors should not match IsNotFound")
	}
}
