// Package apperr provides the domain error taxonomy with stable
// machine-readable codes.
package apperr

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Lookup / uniqueness
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// State machines
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// Authorization pairing (caller identity itself is pre-verified upstream)
	CodeForbidden Code = "FORBIDDEN"

	// Input
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// Pitch intake
	CodeWindowNotAccepting Code = "WINDOW_NOT_ACCEPTING"
	CodeCapacityReached    Code = "CAPACITY_REACHED"
	CodeWeeklyLimitReached Code = "WEEKLY_LIMIT_REACHED"

	// External collaborators
	CodeGatewayFailure    Code = "GATEWAY_FAILURE"
	CodeSignatureMismatch Code = "SIGNATURE_MISMATCH"
)

// HTTPStatus maps a domain code to an HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeSignatureMismatch:
		return http.StatusUnauthorized
	case CodeWeeklyLimitReached:
		return http.StatusTooManyRequests
	case CodeGatewayFailure:
		return http.StatusBadGateway
	case CodeInvalidTransition, CodeValidationFailed,
		CodeWindowNotAccepting, CodeCapacityReached:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
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

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error carrying extra context, e.g. the
// current and attempted states of a rejected transition.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf extracts the domain code from an error chain, CodeUnknown when the
// error is not a domain error.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}
