package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAICompatGeneratorSendsPrompt(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  generated  "}}]}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(GeneratorConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	text, err := g.GenerateText(context.Background(), Prompt{System: "persona", User: "write", MaxTokens: 300, Temperature: 0.7})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "generated" {
		t.Fatalf("unexpected text %q", text)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "write" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if got.MaxTokens != 300 || got.Temperature != 0.7 {
		t.Fatalf("unexpected sampling params: %+v", got)
	}
}

func TestOpenAICompatGeneratorSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(GeneratorConfig{Provider: "openai-compat", BaseURL: srv.URL, Model: "m"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	_, err = g.GenerateText(context.Background(), Prompt{User: "x"})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected api error message, got %v", err)
	}
}

func TestGeminiGeneratorJoinsParts(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-pro:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a"},{"text":"b"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(GeneratorConfig{Provider: "gemini", BaseURL: srv.URL, APIKey: "k", Model: "models/gemini-pro"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	text, err := g.GenerateText(context.Background(), Prompt{System: "sys", User: "u", MaxTokens: 50})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "ab" {
		t.Fatalf("unexpected text %q", text)
	}
	if got.SystemInstruction == nil || got.GenerationConfig == nil || got.GenerationConfig.MaxOutputTokens != 50 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOllamaGeneratorPassesOptions(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi"}}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(GeneratorConfig{Provider: "ollama", BaseURL: srv.URL, Model: "llama3", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	if _, err := g.GenerateText(context.Background(), Prompt{User: "u", MaxTokens: 12, Temperature: 0.2}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got.Stream || got.Options.NumPredict != 12 || got.Options.Temperature != 0.2 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestNewGeneratorRejectsUnknownProvider(t *testing.T) {
	if _, err := NewGenerator(GeneratorConfig{Provider: "mystery", Model: "m"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if _, err := NewGenerator(GeneratorConfig{Provider: "openai"}); err == nil {
		t.Fatalf("expected error for missing model")
	}
}

type countingGenerator struct{ calls int }

func (c *countingGenerator) GenerateText(context.Context, Prompt) (string, error) {
	c.calls++
	return "ok", nil
}

func TestRateLimitedGeneratorHonoursContext(t *testing.T) {
	inner := &countingGenerator{}
	g := NewRateLimitedGenerator(inner, 0.001, 1)

	if _, err := g.GenerateText(context.Background(), Prompt{}); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.GenerateText(ctx, Prompt{}); err == nil {
		t.Fatalf("expected throttled call to fail once context expires")
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 delegated call, got %d", inner.calls)
	}
}

func TestRateLimitedGeneratorDisabled(t *testing.T) {
	inner := &countingGenerator{}
	if g := NewRateLimitedGenerator(inner, 0, 0); g != TextGenerator(inner) {
		t.Fatalf("expected passthrough when throttling is disabled")
	}
}
