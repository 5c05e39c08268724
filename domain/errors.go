package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTaskNotFound covers both a truly absent task and one owned by a
	// different user; callers must not be able to tell the two apart.
	ErrTaskNotFound = errors.New("task not found")

	// ErrForbidden indicates the verified identity does not match the
	// identity named by the request. It fires before any store lookup.
	ErrForbidden = errors.New("forbidden: access denied")

	// ErrConcurrencyConflict indicates that the underlying storage rejected an
	// update because a newer version of the entity is already persisted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// ValidationError carries per-field messages for malformed input. It is
// synchronous and never retryable.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError reports an identifier collision on insert.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s already exists", e.ID)
}

// StorageError wraps an underlying store failure. Retryable failures
// (timeouts, transient I/O) may be retried with the same operation.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryableStorage reports whether err is a StorageError flagged retryable.
func IsRetryableStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}
