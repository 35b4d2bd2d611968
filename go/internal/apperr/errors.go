package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind int

const (
	// KindInternal is anything not classified below.
	KindInternal Kind = iota
	// KindValidation rejects a request without mutating state.
	KindValidation
	// KindRaceLost means a deadline passed before the request was applied.
	KindRaceLost
	// KindNotFound means the referenced entity does not exist.
	KindNotFound
	// KindTransient is an infrastructure failure that may succeed on retry.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRaceLost:
		return "race_lost"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is the domain error type carried back to clients as a structured result.
type Error struct {
	Kind    Kind   // How the caller should react
	Code    string // Machine-readable code sent to clients
	Message string // Internal message for logs
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation creates a validation error.
func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

// NotFound creates a not-found error.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Transient wraps an infrastructure failure.
func Transient(code, message string, cause error) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: message, Cause: cause}
}

// Wrap returns a copy of base carrying cause, so errors.Is still matches base.
func Wrap(base *Error, cause error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the client-facing code for err, "internal" when unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
