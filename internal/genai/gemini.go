package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// geminiModel is one Gemini model. It implements both Recognizer and Answerer.
type geminiModel struct {
	client *genai.Client
	model  string
}

func newGeminiModel(ctx context.Context, apiKey, model string) (*geminiModel, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // disabled without a key
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiModel{client: client, model: model}, nil
}

// Recognize sends the screenshot together with RecognitionPrompt.
func (m *geminiModel) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(RecognitionPrompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](recognitionTemperature),
		MaxOutputTokens: recognitionMaxTokens,
	}
	return m.generate(ctx, "recognize", contents, config)
}

// Answer runs a single-turn chat.
func (m *geminiModel) Answer(ctx context.Context, system, question string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](answerTemperature),
		MaxOutputTokens:   answerMaxTokens,
	}
	return m.generate(ctx, "answer", genai.Text(question), config)
}

func (m *geminiModel) generate(ctx context.Context, op string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	start := time.Now()
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "gemini call failed",
			"model", m.model,
			"operation", op,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return "", WrapError(fmt.Errorf("generate content: %w", err), ProviderGemini)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	if resp.UsageMetadata != nil {
		slog.DebugContext(ctx, "gemini call completed",
			"model", m.model,
			"operation", op,
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"duration_ms", duration.Milliseconds())
	}
	return strings.TrimSpace(sb.String()), nil
}

func (m *geminiModel) Provider() Provider { return ProviderGemini }

func (m *geminiModel) Close() error { return nil }
