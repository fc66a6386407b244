package repositories

import (
	"errors"
	"fmt"
)

// errorKind categorises a persistence failure.
type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// StoreError is the concrete RepositoryError used by all storage backends.
type StoreError struct {
	Op      string
	Message string
	Err     error
	kind    errorKind
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports a missing record.
func (e *StoreError) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

// IsConflict reports a uniqueness or concurrent-update conflict.
func (e *StoreError) IsConflict() bool { return e != nil && e.kind == kindConflict }

// IsUnavailable reports a backend availability failure.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NewNotFound constructs a not-found repository error.
func NewNotFound(op string, message string, err error) *StoreError {
	return &StoreError{Op: op, Message: message, Err: err, kind: kindNotFound}
}

// NewConflict constructs a conflict repository error.
func NewConflict(op string, message string, err error) *StoreError {
	return &StoreError{Op: op, Message: message, Err: err, kind: kindConflict}
}

// NewUnavailable constructs an availability repository error.
func NewUnavailable(op string, message string, err error) *StoreError {
	return &StoreError{Op: op, Message: message, Err: err, kind: kindUnavailable}
}

// IsNotFound reports whether err categorises as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err categorises as a persistence conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err categorises as a backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
