package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine reports so the boundary
// layer can map it to a transport status.
type ErrorKind int

const (
	ErrInternal ErrorKind = iota
	ErrValidation
	ErrNotFound
	ErrForbidden
	ErrConnection
	ErrExecution
)

func (k ErrorKind) String() string {
	switch k {
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	case ErrForbidden:
		return "forbidden"
	case ErrConnection:
		return "connection"
	case ErrExecution:
		return "execution"
	default:
		return "internal"
	}
}

// Error is the single error type returned by the engine
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != ErrInternal {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors that did not originate in the
// engine are reported as ErrInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func validationError(format string, args ...any) error {
	return newError(ErrValidation, nil, format, args...)
}

func notFoundError(format string, args ...any) error {
	return newError(ErrNotFound, nil, format, args...)
}

func forbiddenError(format string, args ...any) error {
	return newError(ErrForbidden, nil, format, args...)
}

func connectionError(err error, format string, args ...any) error {
	return newError(ErrConnection, err, format, args...)
}

func executionError(err error, format string, args ...any) error {
	return newError(ErrExecution, err, format, args...)
}

// internalError hides the underlying cause from the message but keeps it
// reachable through Unwrap for logging.
func internalError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrInternal, Message: "internal error", Err: err}
}
