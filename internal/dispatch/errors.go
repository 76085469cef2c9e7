package dispatch

import (
	"errors"
	"fmt"
)

// OpError represents the terminal failure of one unit of work.
//
// Every failed unit reports exactly one OpError to its completion sink.
// The error never leaks into neighbouring units: the worker survives all of
// them.
//
// OpError includes structured fields for diagnostics.
type OpError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Seq identifies the unit of work, when known.
	Seq int64

	// Err is the underlying cause (engine error, callback error, ctx error).
	Err error
}

// ErrorCode categorizes operation errors.
type ErrorCode string

const (
	// ErrCodeDisposed indicates use after teardown: a disposed connection or
	// statement, or a lease accessed outside its scheduling window.
	ErrCodeDisposed ErrorCode = "DISPOSED"

	// ErrCodeCancelled indicates cooperative cancellation was observed at a
	// checkpoint (before start, or between produced values).
	ErrCodeCancelled ErrorCode = "CANCELLED"

	// ErrCodeEngine indicates the native engine reported an error.
	ErrCodeEngine ErrorCode = "ENGINE"

	// ErrCodeCallback indicates caller-supplied logic failed or panicked
	// inside a unit of work.
	ErrCodeCallback ErrorCode = "CALLBACK"
)

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Seq != 0 {
		return fmt.Sprintf("%s: %s (seq=%d)", e.Code, e.Message, e.Seq)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *OpError) Unwrap() error {
	return e.Err
}

// IsDisposed reports whether err is a use-after-teardown error.
// Uses errors.As to handle wrapped errors.
func IsDisposed(err error) bool {
	return codeOf(err) == ErrCodeDisposed
}

// IsCancelled reports whether err is a cooperative cancellation outcome.
func IsCancelled(err error) bool {
	return codeOf(err) == ErrCodeCancelled
}

// IsEngine reports whether err wraps a native engine error.
func IsEngine(err error) bool {
	return codeOf(err) == ErrCodeEngine
}

// IsCallback reports whether err came from caller-supplied logic.
func IsCallback(err error) bool {
	return codeOf(err) == ErrCodeCallback
}

func codeOf(err error) ErrorCode {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// Disposed creates an OpError for an operation attempted after teardown.
func Disposed(what string) *OpError {
	return &OpError{
		Code:    ErrCodeDisposed,
		Message: what + " is disposed",
	}
}

// Cancelled creates an OpError for a cancellation observed at a checkpoint.
func Cancelled(cause error) *OpError {
	return &OpError{
		Code:    ErrCodeCancelled,
		Message: "operation cancelled",
		Err:     cause,
	}
}

// EngineFailure wraps a native engine error.
func EngineFailure(err error) *OpError {
	return &OpError{
		Code:    ErrCodeEngine,
		Message: "engine error",
		Err:     err,
	}
}

// CallbackFailure wraps an error raised by caller-supplied logic.
func CallbackFailure(err error) *OpError {
	return &OpError{
		Code:    ErrCodeCallback,
		Message: "callback failed",
		Err:     err,
	}
}
