package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotConfigured is returned by a chain with no models.
var ErrNotConfigured = errors.New("genai: no provider configured")

// chain tries each member in order with per-member retry. It stops early on
// permanent errors.
type chain[M interface{ Provider() Provider }] struct {
	members  []M
	retry    RetryConfig
	recorder Recorder
	op       string
}

func (c *chain[M]) run(ctx context.Context, call func(context.Context, M) (string, error)) (string, error) {
	if c == nil || len(c.members) == 0 {
		return "", ErrNotConfigured
	}

	start := time.Now()
	first := c.members[0].Provider()
	var lastErr error
	for i, m := range c.members {
		provider := m.Provider()
		attemptStart := time.Now()
		result, err := withRetry(ctx, c.retry, provider, c.op, func(ctx context.Context) (string, error) {
			return call(ctx, m)
		})
		c.record(provider, err, attemptStart)
		if err == nil {
			if i > 0 {
				c.recordFallback(first, provider)
				slog.InfoContext(ctx, "llm fallback succeeded",
					"operation", c.op,
					"from", first,
					"to", provider,
					"duration", time.Since(start))
			}
			return result, nil
		}

		lastErr = err
		action := ClassifyError(err)
		slog.WarnContext(ctx, "llm chain member failed",
			"operation", c.op,
			"provider", provider,
			"position", i,
			"action", action,
			"error", err)
		if action == ActionFail || ctx.Err() != nil {
			break
		}
	}

	slog.ErrorContext(ctx, "all llm providers failed",
		"operation", c.op,
		"chain_size", len(c.members),
		"error", lastErr)
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

func (c *chain[M]) record(provider Provider, err error, start time.Time) {
	if c.recorder != nil {
		c.recorder.RecordLLM(string(provider), c.op, errorStatus(err), time.Since(start))
	}
}

func (c *chain[M]) recordFallback(from, to Provider) {
	if c.recorder != nil {
		c.recorder.RecordLLMFallback(string(from), string(to), c.op)
	}
}

func (c *chain[M]) close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, m := range c.members {
		if cl, ok := any(m).(interface{ Close() error }); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// FallbackRecognizer tries vision models in order.
type FallbackRecognizer struct {
	chain chain[Recognizer]
}

// NewFallbackRecognizer builds a recognizer over members. recorder may be nil.
func NewFallbackRecognizer(cfg RetryConfig, recorder Recorder, members ...Recognizer) *FallbackRecognizer {
	return &FallbackRecognizer{chain: chain[Recognizer]{members: members, retry: cfg, recorder: recorder, op: "recognize"}}
}

// Recognize implements Recognizer.
func (f *FallbackRecognizer) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	if f == nil {
		return "", ErrNotConfigured
	}
	return f.chain.run(ctx, func(ctx context.Context, r Recognizer) (string, error) {
		return r.Recognize(ctx, image, mimeType)
	})
}

// Provider returns the primary provider.
func (f *FallbackRecognizer) Provider() Provider {
	if f == nil || len(f.chain.members) == 0 {
		return ""
	}
	return f.chain.members[0].Provider()
}

// Close closes every member.
func (f *FallbackRecognizer) Close() error {
	if f == nil {
		return nil
	}
	return f.chain.close()
}

// FallbackAnswerer tries chat models in order.
type FallbackAnswerer struct {
	chain chain[Answerer]
}

// NewFallbackAnswerer builds an answerer over members. recorder may be nil.
func NewFallbackAnswerer(cfg RetryConfig, recorder Recorder, members ...Answerer) *FallbackAnswerer {
	return &FallbackAnswerer{chain: chain[Answerer]{members: members, retry: cfg, recorder: recorder, op: "answer"}}
}

// Answer implements Answerer.
func (f *FallbackAnswerer) Answer(ctx context.Context, system, question string) (string, error) {
	if f == nil {
		return "", ErrNotConfigured
	}
	return f.chain.run(ctx, func(ctx context.Context, a Answerer) (string, error) {
		return a.Answer(ctx, system, question)
	})
}

// Provider returns the primary provider.
func (f *FallbackAnswerer) Provider() Provider {
	if f == nil || len(f.chain.members) == 0 {
		return ""
	}
	return f.chain.members[0].Provider()
}

// Close closes every member.
func (f *FallbackAnswerer) Close() error {
	if f == nil {
		return nil
	}
	return f.chain.close()
}
