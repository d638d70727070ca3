// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// LINE (optional, enables the webhook and daily digest push)
	EnvLineChannelAccessToken = "TIMETABLE_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "TIMETABLE_LINE_CHANNEL_SECRET"

	// Server
	EnvPort            = "TIMETABLE_PORT"
	EnvLogLevel        = "TIMETABLE_LOG_LEVEL"
	EnvShutdownTimeout = "TIMETABLE_SHUTDOWN_TIMEOUT"
	EnvTimezone        = "TIMETABLE_TIMEZONE"
	EnvCORSOrigins     = "TIMETABLE_CORS_ORIGINS"

	// API authentication
	EnvJWTSecret = "TIMETABLE_JWT_SECRET"
	EnvJWTIssuer = "TIMETABLE_JWT_ISSUER"

	// Data
	EnvDataDir          = "TIMETABLE_DATA_DIR"
	EnvSectionTimesFile = "TIMETABLE_SECTION_TIMES_FILE"
	EnvQueryCacheTTL    = "TIMETABLE_QUERY_CACHE_TTL"

	// Import
	EnvImportLockTimeout = "TIMETABLE_IMPORT_LOCK_TIMEOUT"
	EnvImportMaxImage    = "TIMETABLE_IMPORT_MAX_IMAGE_BYTES"
	EnvImageStore        = "TIMETABLE_IMAGE_STORE"

	// Rate Limits
	EnvUserRateBurst  = "TIMETABLE_USER_RATE_BURST"
	EnvUserRateRefill = "TIMETABLE_USER_RATE_REFILL"
	EnvLLMRateBurst   = "TIMETABLE_LLM_RATE_BURST"
	EnvLLMRateRefill  = "TIMETABLE_LLM_RATE_REFILL"
	EnvLLMRateDaily   = "TIMETABLE_LLM_RATE_DAILY"

	// LLM Feature
	EnvLLMProviders       = "TIMETABLE_LLM_PROVIDERS"
	EnvGeminiAPIKey       = "TIMETABLE_GEMINI_API_KEY"
	EnvGeminiVisionModels = "TIMETABLE_GEMINI_VISION_MODELS"
	EnvGeminiChatModels   = "TIMETABLE_GEMINI_CHAT_MODELS"
	EnvQwenAPIKey         = "TIMETABLE_QWEN_API_KEY"
	EnvQwenBaseURL        = "TIMETABLE_QWEN_BASE_URL"
	EnvQwenVisionModels   = "TIMETABLE_QWEN_VISION_MODELS"
	EnvQwenChatModels     = "TIMETABLE_QWEN_CHAT_MODELS"

	// Daily digest
	EnvDigestEnabled  = "TIMETABLE_DIGEST_ENABLED"
	EnvDigestInterval = "TIMETABLE_DIGEST_INTERVAL"

	// R2 Feature (image archive, distributed import lease, database backups)
	EnvR2Enabled         = "TIMETABLE_R2_ENABLED"
	EnvR2AccountID       = "TIMETABLE_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "TIMETABLE_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "TIMETABLE_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "TIMETABLE_R2_BUCKET_NAME"
	EnvR2BackupKey       = "TIMETABLE_R2_BACKUP_KEY"
	EnvR2BackupInterval  = "TIMETABLE_R2_BACKUP_INTERVAL"
	EnvR2LockKey         = "TIMETABLE_R2_LOCK_KEY"
	EnvR2LockTTL         = "TIMETABLE_R2_LOCK_TTL"

	// MinIO Feature (self-hosted image store)
	EnvMinIOEndpoint  = "TIMETABLE_MINIO_ENDPOINT"
	EnvMinIOAccessKey = "TIMETABLE_MINIO_ACCESS_KEY"
	EnvMinIOSecretKey = "TIMETABLE_MINIO_SECRET_KEY"
	EnvMinIOBucket    = "TIMETABLE_MINIO_BUCKET"
	EnvMinIOUseSSL    = "TIMETABLE_MINIO_USE_SSL"

	// Metrics
	EnvMetricsEnabled  = "TIMETABLE_METRICS_ENABLED"
	EnvMetricsUsername = "TIMETABLE_METRICS_USERNAME"
	EnvMetricsPassword = "TIMETABLE_METRICS_PASSWORD"

	// Sentry Feature
	EnvSentryEnabled     = "TIMETABLE_SENTRY_ENABLED"
	EnvSentryDSN         = "TIMETABLE_SENTRY_DSN"
	EnvSentryEnvironment = "TIMETABLE_SENTRY_ENVIRONMENT"
	EnvSentryRelease     = "TIMETABLE_SENTRY_RELEASE"
	EnvSentrySampleRate  = "TIMETABLE_SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackEnabled  = "TIMETABLE_BETTERSTACK_ENABLED"
	EnvBetterStackToken    = "TIMETABLE_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "TIMETABLE_BETTERSTACK_ENDPOINT"
)
