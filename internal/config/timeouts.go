// Package config provides centralized timeout constants for the application.
//
// # LINE API Constraints
//
// LINE webhook has specific timing requirements:
//   - Reply token: Valid for ~20 minutes, but should reply ASAP for good UX
//   - Webhook response: LINE expects quick acknowledgment (200 OK)
//   - Loading animation: Shows for up to 60 seconds, helps user wait
//
// Timetable recognition is the slowest path: the vision model alone can take
// 20-40s, so the webhook processing budget stays at the 60s animation limit.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for processing a single webhook event.
	// Covers image download, recognition, parsing and persistence.
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout.
	// Uploaded timetable images are small (a few MB at most).
	WebhookHTTPRead = 30 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	// Should accommodate a synchronous API import + response serialization.
	WebhookHTTPWrite = 95 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Import timeouts
const (
	// ImportLockWait is how long an import waits for the user's lease.
	ImportLockWait = 30 * time.Second

	// RecognitionRequest is the timeout for a single vision model call.
	RecognitionRequest = 60 * time.Second

	// ImportTotal bounds a whole API-triggered import.
	ImportTotal = 90 * time.Second
)

// LLM timeouts
const (
	// AnswerRequest is the timeout for a single chat completion used by QA.
	AnswerRequest = 20 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour

	// SlowQueryThreshold is the duration above which queries are logged.
	SlowQueryThreshold = 100 * time.Millisecond
)

// Background job intervals
const (
	// QueryCacheTTL is how long day and week query results stay cached.
	QueryCacheTTL = 10 * time.Minute

	// DigestTick is how often digest subscriptions are checked.
	DigestTick = time.Minute

	// BackupInterval is how often a database backup is uploaded to R2.
	BackupInterval = 6 * time.Hour

	// BackupInitialDelay is the delay before the first backup.
	BackupInitialDelay = 10 * time.Minute

	// RateLimiterCleanupInterval is how often inactive user rate limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	// Allows in-flight requests to complete before forceful termination.
	GracefulShutdown = 30 * time.Second
)
