// Package config provides application configuration management.
// It loads settings from environment variables (optionally from a .env file)
// and provides defaults for the server, import pipeline, LLM providers and
// optional integrations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ValidationMode selects which settings Validate insists on.
type ValidationMode int

const (
	// ServerMode validates everything the HTTP server needs.
	ServerMode ValidationMode = iota
	// ToolMode only validates settings shared by offline tools.
	ToolMode
)

// Image store backends.
const (
	ImageStoreLocal = "local"
	ImageStoreR2    = "r2"
	ImageStoreMinIO = "minio"
)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	Timezone        string
	CORSOrigins     []string

	// API authentication
	JWTSecret string
	JWTIssuer string

	// Data Configuration
	DataDir          string
	SectionTimesFile string
	QueryCacheTTL    time.Duration

	// Import Configuration
	ImportLockTimeout time.Duration
	MaxImageBytes     int64
	ImageStore        string

	// Rate Limits (Token Bucket Algorithm)
	UserRateBurst  float64 // Maximum burst tokens per user
	UserRateRefill float64 // Tokens refilled per second
	LLMRateBurst   float64 // Maximum burst LLM calls per user
	LLMRateRefill  float64 // LLM tokens refilled per hour
	LLMRateDaily   int     // Maximum LLM calls per user per day (0 = disabled)

	// LLM Configuration
	LLMProviders       []string // Provider order, first is primary
	GeminiAPIKey       string
	GeminiVisionModels []string
	GeminiChatModels   []string
	QwenAPIKey         string
	QwenBaseURL        string
	QwenVisionModels   []string
	QwenChatModels     []string

	// Daily digest
	DigestEnabled  bool
	DigestInterval time.Duration

	// R2 Configuration
	R2Enabled         bool
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2BackupKey       string
	R2BackupInterval  time.Duration
	R2LockKey         string
	R2LockTTL         time.Duration

	// MinIO Configuration
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// Metrics
	MetricsEnabled  bool
	MetricsUsername string
	MetricsPassword string // empty = no auth

	// Sentry
	SentryEnabled     bool
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string
	SentrySampleRate  float64

	// Better Stack
	BetterStackEnabled  bool
	BetterStackToken    string
	BetterStackEndpoint string
}

// Load reads configuration from environment variables and validates it for
// the server.
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration from environment variables.
// It attempts to load .env file first, then reads from env vars.
func LoadForMode(mode ValidationMode) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		Timezone:        getEnv(EnvTimezone, "Asia/Shanghai"),
		CORSOrigins:     getListEnv(EnvCORSOrigins, []string{"*"}),

		JWTSecret: getEnv(EnvJWTSecret, ""),
		JWTIssuer: getEnv(EnvJWTIssuer, "timetable"),

		DataDir:          getEnv(EnvDataDir, getDefaultDataDir()),
		SectionTimesFile: getEnv(EnvSectionTimesFile, ""),
		QueryCacheTTL:    getDurationEnv(EnvQueryCacheTTL, QueryCacheTTL),

		ImportLockTimeout: getDurationEnv(EnvImportLockTimeout, ImportLockWait),
		MaxImageBytes:     int64(getIntEnv(EnvImportMaxImage, 10<<20)),
		ImageStore:        strings.ToLower(getEnv(EnvImageStore, ImageStoreLocal)),

		UserRateBurst:  getFloatEnv(EnvUserRateBurst, 15.0),
		UserRateRefill: getFloatEnv(EnvUserRateRefill, 0.1), // 1 per 10s
		LLMRateBurst:   getFloatEnv(EnvLLMRateBurst, 20.0),
		LLMRateRefill:  getFloatEnv(EnvLLMRateRefill, 10.0),
		LLMRateDaily:   getIntEnv(EnvLLMRateDaily, 60),

		LLMProviders:       lowerAll(getListEnv(EnvLLMProviders, []string{"gemini", "qwen"})),
		GeminiAPIKey:       getEnv(EnvGeminiAPIKey, ""),
		GeminiVisionModels: getListEnv(EnvGeminiVisionModels, nil),
		GeminiChatModels:   getListEnv(EnvGeminiChatModels, nil),
		QwenAPIKey:         getEnv(EnvQwenAPIKey, ""),
		QwenBaseURL:        getEnv(EnvQwenBaseURL, ""),
		QwenVisionModels:   getListEnv(EnvQwenVisionModels, nil),
		QwenChatModels:     getListEnv(EnvQwenChatModels, nil),

		DigestEnabled:  getBoolEnv(EnvDigestEnabled, true),
		DigestInterval: getDurationEnv(EnvDigestInterval, DigestTick),

		R2Enabled:         getBoolEnv(EnvR2Enabled, false),
		R2AccountID:       getEnv(EnvR2AccountID, ""),
		R2AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
		R2SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
		R2BucketName:      getEnv(EnvR2BucketName, ""),
		R2BackupKey:       getEnv(EnvR2BackupKey, "backups/timetable.db.zst"),
		R2BackupInterval:  getDurationEnv(EnvR2BackupInterval, BackupInterval),
		R2LockKey:         getEnv(EnvR2LockKey, "locks/backup.lock"),
		R2LockTTL:         getDurationEnv(EnvR2LockTTL, 5*time.Minute),

		MinIOEndpoint:  getEnv(EnvMinIOEndpoint, ""),
		MinIOAccessKey: getEnv(EnvMinIOAccessKey, ""),
		MinIOSecretKey: getEnv(EnvMinIOSecretKey, ""),
		MinIOBucket:    getEnv(EnvMinIOBucket, "timetable"),
		MinIOUseSSL:    getBoolEnv(EnvMinIOUseSSL, true),

		MetricsEnabled:  getBoolEnv(EnvMetricsEnabled, true),
		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		SentryEnabled:     getBoolEnv(EnvSentryEnabled, false),
		SentryDSN:         getEnv(EnvSentryDSN, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),
		SentryRelease:     getEnv(EnvSentryRelease, ""),
		SentrySampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackEnabled:  getBoolEnv(EnvBetterStackEnabled, false),
		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for server mode.
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode checks if required configuration values are set.
// All problems are reported together.
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New(EnvDataDir+" is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("%s: unknown time zone %q", EnvTimezone, c.Timezone))
	}

	if mode == ServerMode {
		if c.Port == "" {
			errs = append(errs, errors.New(EnvPort+" is required"))
		}
		if (c.LineChannelToken == "") != (c.LineChannelSecret == "") {
			errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvLineChannelAccessToken, EnvLineChannelSecret))
		}
		if c.JWTSecret == "" && !c.LineEnabled() {
			errs = append(errs, fmt.Errorf("%s or LINE credentials are required", EnvJWTSecret))
		}
		if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
			errs = append(errs, fmt.Errorf("%s must be at least 32 bytes", EnvJWTSecret))
		}
		if c.ImportLockTimeout <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvImportLockTimeout, c.ImportLockTimeout))
		}
		if c.MaxImageBytes <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvImportMaxImage, c.MaxImageBytes))
		}
		if c.UserRateBurst <= 0 || c.UserRateRefill <= 0 {
			errs = append(errs, errors.New("user rate limit burst and refill must be positive"))
		}
		if c.LLMRateDaily < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvLLMRateDaily, c.LLMRateDaily))
		}
		if err := c.validateImageStore(); err != nil {
			errs = append(errs, err)
		}
		for _, p := range c.LLMProviders {
			if !slices.Contains([]string{"gemini", "qwen"}, p) {
				errs = append(errs, fmt.Errorf("%s: unknown provider %q", EnvLLMProviders, p))
			}
		}
	}

	if c.R2Enabled {
		if c.R2AccountID == "" || c.R2AccessKeyID == "" || c.R2SecretAccessKey == "" || c.R2BucketName == "" {
			errs = append(errs, errors.New("R2 is enabled but account id, access key, secret or bucket is missing"))
		}
		if c.R2LockTTL <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvR2LockTTL, c.R2LockTTL))
		}
	}
	if c.SentryEnabled && c.SentryDSN == "" {
		errs = append(errs, errors.New(EnvSentryDSN+" is required when Sentry is enabled"))
	}
	if c.BetterStackEnabled && c.BetterStackToken == "" {
		errs = append(errs, errors.New(EnvBetterStackToken+" is required when Better Stack is enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Config) validateImageStore() error {
	switch c.ImageStore {
	case ImageStoreLocal:
		return nil
	case ImageStoreR2:
		if !c.R2Enabled {
			return fmt.Errorf("%s=r2 requires %s=true", EnvImageStore, EnvR2Enabled)
		}
		return nil
	case ImageStoreMinIO:
		if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("%s=minio requires endpoint, access key and secret key", EnvImageStore)
		}
		return nil
	default:
		return fmt.Errorf("%s: unknown image store %q", EnvImageStore, c.ImageStore)
	}
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated environment variable, dropping blanks
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "timetable.db")
}

// ImageDir returns the directory used by the local image store
func (c *Config) ImageDir() string {
	return filepath.Join(c.DataDir, "images")
}

// LineEnabled reports whether LINE credentials are configured.
func (c *Config) LineEnabled() bool {
	return c.LineChannelToken != "" && c.LineChannelSecret != ""
}

// HasLLMProvider returns true if at least one LLM provider is configured.
func (c *Config) HasLLMProvider() bool {
	return c.GeminiAPIKey != "" || c.QwenAPIKey != ""
}

// Location returns the configured time zone, falling back to UTC+8.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*60*60)
}
