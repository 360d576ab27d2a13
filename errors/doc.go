// Package errors provides the structured error taxonomy for dedupkit.
//
// # Error Categories
//
// Errors are classified into three categories:
//
//   - Transient: temporary failures where retry may succeed (store outages, timeouts)
//   - Permanent: failures where retry will not help (missing file, exhausted budget)
//   - Internal: unexpected errors indicating bugs or corrupted state
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeNotFound, "file does not exist")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "computing fingerprint")
//
// Check a specific failure mode:
//
//	if errors.IsUnavailable(err) {
//	    // proceed without deduplication
//	}
package errors
