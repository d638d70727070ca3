package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiModel is one model behind an OpenAI-compatible endpoint. It
// implements both Recognizer and Answerer.
type openaiModel struct {
	client   openai.Client
	model    string
	provider Provider
}

func newOpenAIModel(provider Provider, apiKey, baseURL, model string) (*openaiModel, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // disabled without a key
	}
	if baseURL == "" {
		var ok bool
		if baseURL, ok = ProviderEndpoint[provider]; !ok {
			return nil, fmt.Errorf("unsupported OpenAI-compatible provider: %s", provider)
		}
	}
	if model == "" {
		return nil, fmt.Errorf("no model configured for provider: %s", provider)
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &openaiModel{client: client, model: model, provider: provider}, nil
}

// Recognize sends the screenshot as a data URL followed by RecognitionPrompt.
func (m *openaiModel) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: m.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(image, mimeType),
				}),
				openai.TextContentPart(RecognitionPrompt),
			}),
		},
		Temperature: openai.Float(recognitionTemperature),
		MaxTokens:   openai.Int(recognitionMaxTokens),
	}
	return m.complete(ctx, "recognize", params)
}

// Answer runs a single-turn chat.
func (m *openaiModel) Answer(ctx context.Context, system, question string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: m.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(question),
		},
		Temperature: openai.Float(answerTemperature),
		MaxTokens:   openai.Int(answerMaxTokens),
	}
	return m.complete(ctx, "answer", params)
}

func (m *openaiModel) complete(ctx context.Context, op string, params openai.ChatCompletionNewParams) (string, error) {
	start := time.Now()
	resp, err := m.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "chat completion failed",
			"provider", m.provider,
			"model", m.model,
			"operation", op,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return "", WrapError(fmt.Errorf("chat completion: %w", err), m.provider)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	if resp.Usage.TotalTokens > 0 {
		slog.DebugContext(ctx, "chat completion completed",
			"provider", m.provider,
			"model", m.model,
			"operation", op,
			"input_tokens", resp.Usage.PromptTokens,
			"output_tokens", resp.Usage.CompletionTokens,
			"duration_ms", duration.Milliseconds())
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (m *openaiModel) Provider() Provider {
	if m == nil {
		return ""
	}
	return m.provider
}

func (m *openaiModel) Close() error { return nil }

func dataURL(image []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
}
