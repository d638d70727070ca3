// Package metrics defines the Prometheus collectors of the service. Every
// collector is registered on the registry passed to New so tests can use a
// private registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Import metrics
	ImportsTotal          *prometheus.CounterVec
	ImportDurationSeconds prometheus.Histogram
	ParseWarningsTotal    prometheus.Counter

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMDurationSeconds *prometheus.HistogramVec
	LLMFallbackTotal   *prometheus.CounterVec

	// Query metrics
	QueryDurationSeconds *prometheus.HistogramVec
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec

	// Webhook metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped    *prometheus.CounterVec
	RateLimiterActiveKeys *prometheus.GaugeVec

	// Lease metrics
	LeaseWaitSeconds *prometheus.HistogramVec

	// Background job metrics
	DigestSendsTotal *prometheus.CounterVec
	BackupsTotal     *prometheus.CounterVec
	BackupDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		ImportsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_imports_total",
				Help: "Total number of timetable imports by status",
			},
			[]string{"status"}, // status: success, busy, recognition_failed, parse_failed, io_failed, invalid
		),
		ImportDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "timetable_import_duration_seconds",
				Help:    "End-to-end import duration including recognition",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60, 90},
			},
		),
		ParseWarningsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "timetable_parse_warnings_total",
				Help: "Total number of skipped or partially parsed course segments",
			},
		),

		LLMRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_llm_requests_total",
				Help: "Total LLM calls by provider, operation and status",
			},
			[]string{"provider", "operation", "status"}, // operation: recognize, answer
		),
		LLMDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timetable_llm_duration_seconds",
				Help:    "LLM call duration by provider and operation, retries included",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "operation"},
		),
		LLMFallbackTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_llm_fallback_total",
				Help: "Total successful fallbacks away from the primary provider",
			},
			[]string{"from", "to", "operation"},
		),

		QueryDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timetable_query_duration_seconds",
				Help:    "Schedule query duration by kind",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"kind"}, // kind: day, week, ask, export_ics, export_xlsx
		),
		CacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_cache_hits_total",
				Help: "Total number of query cache hits by kind",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_cache_misses_total",
				Help: "Total number of query cache misses by kind",
			},
			[]string{"kind"},
		),

		WebhookDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timetable_webhook_duration_seconds",
				Help:    "Webhook event processing duration by event type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 20, 60},
			},
			[]string{"event_type"}, // event_type: text, image, follow, unfollow
		),
		WebhookRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_webhook_requests_total",
				Help: "Total webhook events by type and status",
			},
			[]string{"event_type", "status"},
		),

		HTTPErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: unauthorized, rate_limit, invalid_signature, internal
		),

		RateLimiterDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter"}, // limiter: user, llm
		),
		RateLimiterActiveKeys: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "timetable_rate_limiter_active_keys",
				Help: "Number of keys tracked by each rate limiter",
			},
			[]string{"limiter"},
		),

		LeaseWaitSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timetable_import_lease_wait_seconds",
				Help:    "Time spent waiting for the per-user import lease by outcome",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"outcome"}, // outcome: acquired, busy, canceled
		),

		DigestSendsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_digest_sends_total",
				Help: "Total daily digest pushes by status",
			},
			[]string{"status"},
		),
		BackupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetable_backups_total",
				Help: "Total database backup attempts by status",
			},
			[]string{"status"},
		),
		BackupDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "timetable_backup_duration_seconds",
				Help:    "Database backup duration",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120},
			},
		),
	}
}

// RecordImport records a finished import.
func (m *Metrics) RecordImport(status string, d time.Duration) {
	m.ImportsTotal.WithLabelValues(status).Inc()
	m.ImportDurationSeconds.Observe(d.Seconds())
}

// RecordParseWarnings adds skipped segments of one import.
func (m *Metrics) RecordParseWarnings(n int) {
	if n > 0 {
		m.ParseWarningsTotal.Add(float64(n))
	}
}

// RecordLLM records one provider call including its retries.
func (m *Metrics) RecordLLM(provider, operation, status string, d time.Duration) {
	m.LLMRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	m.LLMDurationSeconds.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// RecordLLMFallback records a call served by a fallback provider.
func (m *Metrics) RecordLLMFallback(from, to, operation string) {
	m.LLMFallbackTotal.WithLabelValues(from, to, operation).Inc()
}

// RecordQuery records a schedule query duration.
func (m *Metrics) RecordQuery(kind string, d time.Duration) {
	m.QueryDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(kind string) {
	m.CacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordWebhook records a webhook event
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiter string) {
	m.RateLimiterDropped.WithLabelValues(limiter).Inc()
}

// SetRateLimiterKeys reports how many keys a limiter tracks.
func (m *Metrics) SetRateLimiterKeys(limiter string, count int) {
	m.RateLimiterActiveKeys.WithLabelValues(limiter).Set(float64(count))
}

// RecordLeaseWait records how long an import waited for its lease.
func (m *Metrics) RecordLeaseWait(outcome string, d time.Duration) {
	m.LeaseWaitSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordDigest records a digest push attempt.
func (m *Metrics) RecordDigest(status string) {
	m.DigestSendsTotal.WithLabelValues(status).Inc()
}

// RecordBackup records a backup attempt.
func (m *Metrics) RecordBackup(status string, d time.Duration) {
	m.BackupsTotal.WithLabelValues(status).Inc()
	m.BackupDuration.Observe(d.Seconds())
}
