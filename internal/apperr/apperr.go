// Package apperr defines the service error taxonomy: typed errors carrying a
// machine-readable code, a user-facing message, and an HTTP status.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a classified service error. The HTTP boundary renders it as the
// standard envelope {error:{code,message}, request_id}.
type Error struct {
	// Code is the machine-readable error identifier (snake_case).
	Code string

	// Message is the user-facing description.
	Message string

	// Status is the HTTP status the boundary responds with.
	Status int

	// Details optionally carries structured context, e.g. per-field
	// validation failures. Omitted from the envelope when nil.
	Details any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// New creates a classified error.
func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// WithDetails returns a copy of the error carrying structured details.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details

	return &clone
}

// From extracts a classified error from err, or wraps it as internal_error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	return Internal()
}

// Internal returns the generic 500 error.
func Internal() *Error {
	return New("internal_error", "An internal server error occurred.", http.StatusInternalServerError)
}
