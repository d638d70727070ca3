package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{
			name:     "ErrNotFound is recognized",
			err:      ErrNotFound,
			checkFn:  IsNotFound,
			expected: true,
		},
		{
			name:     "Wrapped ErrNotFound is recognized",
			err:      errors.Join(ErrNotFound, errors.New("additional context")),
			checkFn:  IsNotFound,
			expected: true,
		},
		{
			name:     "Different error is not ErrNotFound",
			err:      ErrRateLimitExceeded,
			checkFn:  IsNotFound,
			expected: false,
		},
		{
			name:     "ErrRateLimitExceeded is recognized",
			err:      ErrRateLimitExceeded,
			checkFn:  IsRateLimitExceeded,
			expected: true,
		},
		{
			name:     "ErrInvalidInput is recognized",
			err:      ErrInvalidInput,
			checkFn:  IsInvalidInput,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.checkFn(tt.err)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("email", "invalid format")

	if err.Field != "email" {
		t.Errorf("expected field 'email', got '%s'", err.Field)
	}

	if err.Message != "invalid format" {
		t.Errorf("expected message 'invalid format', got '%s'", err.Message)
	}

	expected := "validation failed on email: invalid format"
	if err.Error() != expected {
		t.Errorf("expected error '%s', got '%s'", expected, err.Error())
	}
}

func TestUpstreamError(t *testing.T) {
	baseErr := errors.New("connection timeout")
	err := NewUpstreamError("gemini", 503, baseErr)

	if err.Service != "gemini" {
		t.Errorf("expected service 'gemini', got '%s'", err.Service)
	}

	if err.StatusCode != 503 {
		t.Errorf("expected status code 503, got %d", err.StatusCode)
	}

	if !errors.Is(err, baseErr) {
		t.Error("expected error to wrap base error")
	}

	expected := "upstream error (service=gemini, status=503): connection timeout"
	if err.Error() != expected {
		t.Errorf("expected '%s', got '%s'", expected, err.Error())
	}

	// Test without status code
	err2 := NewUpstreamError("r2", 0, baseErr)
	if err2.Error() != "upstream error (service=r2): connection timeout" {
		t.Errorf("unexpected message %q", err2.Error())
	}
}

func TestIsImportBusy(t *testing.T) {
	wrapped := NewWrapper("importer", "import").Wrap(ErrImportBusy, "課表正在匯入中")
	if !IsImportBusy(wrapped) {
		t.Error("expected wrapped ErrImportBusy to be recognized")
	}
	if IsImportBusy(ErrImportIO) {
		t.Error("ErrImportIO must not be reported as busy")
	}
}

func TestIsInvalidInput_ValidationError(t *testing.T) {
	err := fmt.Errorf("update sections: %w", NewValidationError("sectionStart", "must be >= 1"))
	if !IsInvalidInput(err) {
		t.Error("expected ValidationError to count as invalid input")
	}
}
