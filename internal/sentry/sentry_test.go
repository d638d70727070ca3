package sentry

import (
	"testing"
	"time"
)

func TestInitialize_EmptyDSN(t *testing.T) {
	t.Parallel()

	if err := Initialize(Config{}); err != nil {
		t.Errorf("Expected nil error for empty DSN, got %v", err)
	}
}

func TestInitialize_InvalidDSN(t *testing.T) {
	t.Parallel()

	if err := Initialize(Config{DSN: "not a dsn"}); err == nil {
		t.Error("Expected error for malformed DSN")
	}
}

func TestInitialize_ValidConfig(t *testing.T) {
	// Sentry keeps global state; not parallel.

	err := Initialize(Config{
		DSN:         "https://public@errors.example.com/1",
		Environment: "test",
		SampleRate:  0,
	})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if !IsEnabled() {
		t.Error("Expected IsEnabled() to return true after initialization")
	}

	Flush(time.Second)
}

func TestFlush(t *testing.T) {
	t.Parallel()

	// Flush returns promptly with nothing queued.
	_ = Flush(100 * time.Millisecond)
}
