package genai

import (
	"context"
	"log/slog"
)

// model is what both provider clients implement.
type model interface {
	Recognizer
	Answerer
}

// NewRecognizer builds a FallbackRecognizer over every configured vision
// model in provider order. It returns nil when nothing is configured.
func NewRecognizer(ctx context.Context, cfg LLMConfig, recorder Recorder) Recognizer {
	models := buildModels(ctx, cfg, func(pc *ProviderConfig) []string { return pc.VisionModels })
	if len(models) == 0 {
		slog.InfoContext(ctx, "no LLM provider configured for recognition")
		return nil
	}
	members := make([]Recognizer, len(models))
	for i, m := range models {
		members[i] = m
	}
	slog.InfoContext(ctx, "recognizer configured",
		"primary", members[0].Provider(),
		"chain_size", len(members))
	return NewFallbackRecognizer(cfg.RetryConfig, recorder, members...)
}

// NewAnswerer builds a FallbackAnswerer over every configured chat model in
// provider order. It returns nil when nothing is configured.
func NewAnswerer(ctx context.Context, cfg LLMConfig, recorder Recorder) Answerer {
	models := buildModels(ctx, cfg, func(pc *ProviderConfig) []string { return pc.ChatModels })
	if len(models) == 0 {
		slog.InfoContext(ctx, "no LLM provider configured for answering")
		return nil
	}
	members := make([]Answerer, len(models))
	for i, m := range models {
		members[i] = m
	}
	slog.InfoContext(ctx, "answerer configured",
		"primary", members[0].Provider(),
		"chain_size", len(members))
	return NewFallbackAnswerer(cfg.RetryConfig, recorder, members...)
}

func buildModels(ctx context.Context, cfg LLMConfig, pick func(*ProviderConfig) []string) []model {
	var out []model
	for _, p := range cfg.ConfiguredProviders() {
		pc := cfg.ProviderConfigFor(p)
		for _, name := range pick(pc) {
			m, err := newModel(ctx, p, pc, name)
			if err != nil {
				slog.WarnContext(ctx, "failed to create llm model", "provider", p, "model", name, "error", err)
				continue
			}
			if m != nil {
				out = append(out, m)
			}
		}
	}
	return out
}

func newModel(ctx context.Context, p Provider, pc *ProviderConfig, name string) (model, error) {
	if p == ProviderGemini {
		m, err := newGeminiModel(ctx, pc.APIKey, name)
		if err != nil || m == nil {
			return nil, err
		}
		return m, nil
	}
	m, err := newOpenAIModel(p, pc.APIKey, pc.BaseURL, name)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

// DefaultLLMConfig returns the default provider order and model chains.
// API keys must be filled in by the caller.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Providers: DefaultProviders,
		Gemini: ProviderConfig{
			VisionModels: DefaultGeminiVisionModels,
			ChatModels:   DefaultGeminiChatModels,
		},
		Qwen: ProviderConfig{
			VisionModels: DefaultQwenVisionModels,
			ChatModels:   DefaultQwenChatModels,
		},
		RetryConfig: DefaultRetryConfig(),
	}
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}
