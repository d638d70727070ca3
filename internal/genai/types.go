// Package genai wraps the LLM providers used for timetable recognition and
// schedule question answering.
//
// Gemini goes through google.golang.org/genai. Qwen is reached through
// DashScope's OpenAI-compatible endpoint with github.com/openai/openai-go/v3.
//
// Failures are handled in three layers: the same model is retried with
// backoff, then the next model of the provider is tried, then the next
// provider in the configured order.
package genai

import (
	"context"
	"time"
)

// Provider names an LLM vendor.
type Provider string

const (
	// ProviderGemini is Google's Gemini API.
	ProviderGemini Provider = "gemini"
	// ProviderQwen is Alibaba's Qwen through DashScope (OpenAI-compatible).
	ProviderQwen Provider = "qwen"
)

// ProviderEndpoint holds default base URLs for OpenAI-compatible providers.
var ProviderEndpoint = map[Provider]string{
	ProviderQwen: "https://dashscope.aliyuncs.com/compatible-mode/v1/",
}

// IsOpenAICompatible reports whether the provider speaks the OpenAI chat API.
func (p Provider) IsOpenAICompatible() bool {
	_, ok := ProviderEndpoint[p]
	return ok
}

func (p Provider) String() string {
	return string(p)
}

// Recognizer turns a timetable screenshot into normalized timetable text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
	Provider() Provider
	Close() error
}

// Answerer completes a single-turn chat with a system instruction.
type Answerer interface {
	Answer(ctx context.Context, system, question string) (string, error)
	Provider() Provider
	Close() error
}

// Recorder receives per-call outcomes. metrics.Metrics implements it.
type Recorder interface {
	RecordLLM(provider, operation, status string, d time.Duration)
	RecordLLMFallback(from, to, operation string)
}

// RetryConfig defines retry behavior for a single model.
// Backoff is Full Jitter: random(0, min(MaxDelay, InitialDelay*2^attempt)).
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// ProviderConfig holds credentials and model chains for one provider.
// The first model of each chain is primary.
type ProviderConfig struct {
	APIKey       string
	BaseURL      string
	VisionModels []string
	ChatModels   []string
}

// LLMConfig holds configuration for all providers.
type LLMConfig struct {
	// Providers is the fallback order. Providers without a key are skipped.
	Providers   []Provider
	Gemini      ProviderConfig
	Qwen        ProviderConfig
	RetryConfig RetryConfig
}

var (
	// DefaultGeminiVisionModels reads timetable screenshots.
	DefaultGeminiVisionModels = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"}
	// DefaultGeminiChatModels answers schedule questions.
	DefaultGeminiChatModels = []string{"gemini-2.5-flash-lite", "gemini-2.5-flash"}

	// DefaultQwenVisionModels reads timetable screenshots.
	DefaultQwenVisionModels = []string{"qwen3-vl-plus", "qwen-vl-max"}
	// DefaultQwenChatModels answers schedule questions.
	DefaultQwenChatModels = []string{"qwen-plus", "qwen-turbo"}

	// DefaultProviders is the default fallback order.
	DefaultProviders = []Provider{ProviderGemini, ProviderQwen}
)

// Retry defaults.
const (
	DefaultMaxRetryAttempts  = 2
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 3 * time.Second
)

// HasAnyProvider reports whether at least one provider has a key.
func (c *LLMConfig) HasAnyProvider() bool {
	return c.Gemini.APIKey != "" || c.Qwen.APIKey != ""
}

// ProviderConfigFor returns the configuration for p, or nil if unknown.
func (c *LLMConfig) ProviderConfigFor(p Provider) *ProviderConfig {
	switch p {
	case ProviderGemini:
		return &c.Gemini
	case ProviderQwen:
		return &c.Qwen
	default:
		return nil
	}
}

// ConfiguredProviders returns the providers that have a key, in fallback
// order. Duplicates are dropped.
func (c *LLMConfig) ConfiguredProviders() []Provider {
	seen := make(map[Provider]bool, len(c.Providers))
	result := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		pc := c.ProviderConfigFor(p)
		if pc == nil || pc.APIKey == "" || seen[p] {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}
