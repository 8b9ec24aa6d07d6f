package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Prompt is one generation request. MaxTokens <= 0 leaves the provider default.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt Prompt) (string, error)
}

// GeneratorConfig selects and configures a provider.
type GeneratorConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewGenerator builds the TextGenerator named by cfg.Provider
// ("openai", "gemini" or "ollama"; "openai" when empty).
func NewGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("generation model required")
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	switch provider {
	case "openai", "openai-compat":
		return newOpenAIGenerator(cfg), nil
	case "gemini":
		g, err := newGeminiGenerator(cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "ollama":
		return newOllamaGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}
