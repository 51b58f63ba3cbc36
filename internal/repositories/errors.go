package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind classifies backend-agnostic repository failures.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindNotFound
	ErrorKindConflict
	ErrorKindUnavailable
)

// Error is the RepositoryError used by backends without a native error type (memory, postgres).
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

var _ RepositoryError = (*Error)(nil)

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.Kind == ErrorKindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.Kind == ErrorKindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == ErrorKindUnavailable }

// NewNotFoundError reports a missing record.
func NewNotFoundError(op string, format string, args ...any) *Error {
	return &Error{Op: op, Kind: ErrorKindNotFound, Err: fmt.Errorf(format, args...)}
}

// NewConflictError reports a uniqueness or concurrency conflict.
func NewConflictError(op string, format string, args ...any) *Error {
	return &Error{Op: op, Kind: ErrorKindConflict, Err: fmt.Errorf(format, args...)}
}

// NewUnavailableError wraps a transient backend failure.
func NewUnavailableError(op string, err error) *Error {
	if err == nil {
		err = errors.New("backend unavailable")
	}
	return &Error{Op: op, Kind: ErrorKindUnavailable, Err: err}
}

// IsNotFound reports whether err carries repository not-found semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
