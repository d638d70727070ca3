// Package errors provides domain-specific error types and sentinel errors
// shared by the import, query and transport layers.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the resource belongs to another user.
	ErrForbidden = errors.New("forbidden")

	// ErrImportBusy indicates another import for the same user holds the lease.
	// Callers may retry.
	ErrImportBusy = errors.New("import already in progress")

	// ErrImportIO indicates persisting an import failed. Prior data is untouched.
	ErrImportIO = errors.New("import persistence failed")

	// ErrRecognition indicates the recognizer produced no usable timetable text.
	ErrRecognition = errors.New("timetable recognition failed")

	// ErrNoTerm indicates the user has no term covering the requested date.
	ErrNoTerm = errors.New("no term configured")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err is or wraps ErrInvalidInput or a ValidationError.
func IsInvalidInput(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrInvalidInput) || errors.As(err, &ve)
}

// IsRateLimitExceeded reports whether err is or wraps ErrRateLimitExceeded.
func IsRateLimitExceeded(err error) bool { return errors.Is(err, ErrRateLimitExceeded) }

// IsImportBusy reports whether err is or wraps ErrImportBusy.
func IsImportBusy(err error) bool { return errors.Is(err, ErrImportBusy) }

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// UpstreamError represents a failed call to an external service such as an
// LLM provider or object storage.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream error (service=%s, status=%d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream error (service=%s): %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a new upstream error.
func NewUpstreamError(service string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{
		Service:    service,
		StatusCode: statusCode,
		Err:        err,
	}
}
