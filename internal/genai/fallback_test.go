package genai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockModel struct {
	provider Provider
	results  []error
	answer   string
	calls    int
	closed   bool
}

func (m *mockModel) next() (string, error) {
	i := m.calls
	m.calls++
	if i < len(m.results) && m.results[i] != nil {
		return "", m.results[i]
	}
	return m.answer, nil
}

func (m *mockModel) Recognize(context.Context, []byte, string) (string, error) { return m.next() }

func (m *mockModel) Answer(context.Context, string, string) (string, error) { return m.next() }

func (m *mockModel) Provider() Provider { return m.provider }

func (m *mockModel) Close() error {
	m.closed = true
	return nil
}

type llmCall struct {
	provider, op, status string
}

type mockRecorder struct {
	mu        sync.Mutex
	calls     []llmCall
	fallbacks [][2]string
}

func (r *mockRecorder) RecordLLM(provider, op, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, llmCall{provider, op, status})
}

func (r *mockRecorder) RecordLLMFallback(from, to, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, [2]string{from, to})
}

func TestFallbackRecognizer_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &mockModel{provider: ProviderGemini, answer: "星期一：第一、二节 高等数学 1-16周 A101；"}
	secondary := &mockModel{provider: ProviderQwen, answer: "unused"}
	rec := &mockRecorder{}

	r := NewFallbackRecognizer(fastRetry(2), rec, primary, secondary)
	got, err := r.Recognize(context.Background(), []byte{1}, "image/png")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if got != primary.answer {
		t.Errorf("Recognize() = %q", got)
	}
	if secondary.calls != 0 {
		t.Error("secondary should not be called")
	}
	if len(rec.calls) != 1 || rec.calls[0] != (llmCall{"gemini", "recognize", "success"}) {
		t.Errorf("recorded %v", rec.calls)
	}
	if r.Provider() != ProviderGemini {
		t.Errorf("Provider() = %s", r.Provider())
	}
}

func TestFallbackRecognizer_FallsBackOnQuota(t *testing.T) {
	t.Parallel()
	primary := &mockModel{provider: ProviderGemini, results: []error{errors.New("quota exceeded")}}
	secondary := &mockModel{provider: ProviderQwen, answer: "text"}
	rec := &mockRecorder{}

	r := NewFallbackRecognizer(fastRetry(3), rec, primary, secondary)
	got, err := r.Recognize(context.Background(), nil, "")
	if err != nil || got != "text" {
		t.Fatalf("Recognize() = (%q, %v)", got, err)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, quota errors are not retried", primary.calls)
	}
	if len(rec.fallbacks) != 1 || rec.fallbacks[0] != [2]string{"gemini", "qwen"} {
		t.Errorf("fallbacks = %v", rec.fallbacks)
	}
}

func TestFallbackRecognizer_RetriesThenFallsBack(t *testing.T) {
	t.Parallel()
	transient := errors.New("service unavailable")
	primary := &mockModel{provider: ProviderGemini, results: []error{transient, transient}}
	secondary := &mockModel{provider: ProviderQwen, answer: "ok"}

	r := NewFallbackRecognizer(fastRetry(2), nil, primary, secondary)
	if _, err := r.Recognize(context.Background(), nil, ""); err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if primary.calls != 2 || secondary.calls != 1 {
		t.Errorf("calls = %d/%d, want 2/1", primary.calls, secondary.calls)
	}
}

func TestFallbackAnswerer_PermanentErrorStops(t *testing.T) {
	t.Parallel()
	primary := &mockModel{provider: ProviderQwen, results: []error{&LLMError{Err: errors.New("denied"), StatusCode: 401}}}
	secondary := &mockModel{provider: ProviderGemini, answer: "unused"}

	a := NewFallbackAnswerer(fastRetry(3), nil, primary, secondary)
	_, err := a.Answer(context.Background(), "sys", "明天有课吗")
	if err == nil {
		t.Fatal("expected error")
	}
	var llmErr *LLMError
	if !errors.As(err, &llmErr) || llmErr.StatusCode != 401 {
		t.Errorf("err = %v, want the 401 cause", err)
	}
	if secondary.calls != 0 {
		t.Error("permanent errors must not fall back")
	}
}

func TestFallbackAnswerer_AllFail(t *testing.T) {
	t.Parallel()
	quota := errors.New("quota exceeded")
	a := NewFallbackAnswerer(fastRetry(1), nil,
		&mockModel{provider: ProviderGemini, results: []error{quota}},
		&mockModel{provider: ProviderQwen, results: []error{quota}},
	)
	if _, err := a.Answer(context.Background(), "", "q"); !errors.Is(err, quota) {
		t.Errorf("err = %v, want wrapped quota error", err)
	}
}

func TestFallback_NotConfigured(t *testing.T) {
	t.Parallel()
	var r *FallbackRecognizer
	if _, err := r.Recognize(context.Background(), nil, ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("nil recognizer err = %v", err)
	}
	if _, err := NewFallbackAnswerer(fastRetry(1), nil).Answer(context.Background(), "", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty answerer err = %v", err)
	}
	if r.Provider() != "" || r.Close() != nil {
		t.Error("nil recognizer should be inert")
	}
}

func TestFallback_CloseClosesMembers(t *testing.T) {
	t.Parallel()
	a, b := &mockModel{provider: ProviderGemini}, &mockModel{provider: ProviderQwen}
	if err := NewFallbackAnswerer(fastRetry(1), nil, a, b).Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Error("all members should be closed")
	}
}
