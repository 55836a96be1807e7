package store

import (
	"errors"
	"fmt"
)

// NotFoundError indicates the requested container does not exist.
type NotFoundError struct {
	Container string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("container %q not found", e.Container)
}

// AccessError indicates the backing store denied access to a container.
type AccessError struct {
	Container string
	Err       error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied to container %q: %v", e.Container, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// InvalidQueryError indicates a malformed filter expression.
type InvalidQueryError struct {
	Query string
	Err   error
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query %q: %v", e.Query, e.Err)
}

func (e *InvalidQueryError) Unwrap() error { return e.Err }

// TransientStoreError indicates a retryable backing-store failure, such as
// a lock timeout or a dropped connection. Callers may re-issue the
// operation once before surfacing the error.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

// IsAccessDenied reports whether err wraps an *AccessError.
func IsAccessDenied(err error) bool {
	var t *AccessError
	return errors.As(err, &t)
}

// IsInvalidQuery reports whether err wraps an *InvalidQueryError.
func IsInvalidQuery(err error) bool {
	var t *InvalidQueryError
	return errors.As(err, &t)
}

// IsTransient reports whether err wraps a *TransientStoreError.
func IsTransient(err error) bool {
	var t *TransientStoreError
	return errors.As(err, &t)
}
