// Package apperr implements the error taxonomy every component surfaces to
// its callers: a small Kind enum plus optional structured Details, mapped to
// HTTP status codes at the transport edge.
package apperr

import "fmt"

// Kind classifies an Error for transport-layer status mapping and caller
// retry logic.
type Kind string

const (
	ValidationError       Kind = "validation_error"
	PreconditionFailure   Kind = "precondition_failure"
	InsufficientResource  Kind = "insufficient_resource"
	SlippageExceededKind  Kind = "slippage_exceeded"
	LimitExceeded         Kind = "limit_exceeded"
	RiskRejected          Kind = "risk_rejected"
	NotFound              Kind = "not_found"
	Conflict              Kind = "conflict"
	LockTimeout           Kind = "lock_timeout"
	Internal              Kind = "internal"
)

// Error is the concrete error type returned by every core-engine package.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// HTTPStatus maps a Kind to the status code spec.md §7 assigns it.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case ValidationError, PreconditionFailure, InsufficientResource, SlippageExceededKind, LimitExceeded, RiskRejected:
		return 400
	case NotFound:
		return 404
	case Conflict:
		return 409
	case LockTimeout:
		return 503
	default:
		return 500
	}
}

// Retryable reports whether the caller should retry the operation.
func (e *Error) Retryable() bool {
	return e.Kind == LockTimeout
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches a structured payload (e.g. {available, required} or
// {expected, actual}) to an Error and returns it for chaining.
func WithDetails(err *Error, details map[string]any) *Error {
	err.Details = details
	return err
}

// As extracts an *Error from err if possible.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// Convenience constructors used throughout the core engine.

func NotFoundf(format string, args ...any) *Error {
	return Newf(NotFound, format, args...)
}

func Preconditionf(format string, args ...any) *Error {
	return Newf(PreconditionFailure, format, args...)
}

func Validationf(format string, args ...any) *Error {
	return Newf(ValidationError, format, args...)
}

func Internalf(format string, args ...any) *Error {
	return Newf(Internal, format, args...)
}

func Insufficient(kind string, available, required int64) *Error {
	return WithDetails(Newf(InsufficientResource, "insufficient %s", kind), map[string]any{
		"available": available,
		"required":  required,
	})
}

func Slippage(expected, actual int64) *Error {
	return WithDetails(Newf(SlippageExceededKind, "slippage exceeded"), map[string]any{
		"expected": expected,
		"actual":   actual,
	})
}

func Conflictf(format string, args ...any) *Error {
	return Newf(Conflict, format, args...)
}

func LockTimeoutf(format string, args ...any) *Error {
	return Newf(LockTimeout, format, args...)
}
