package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIGenerator talks to any /chat/completions endpoint: OpenAI itself,
// vLLM, LiteLLM or OpenRouter. baseURL includes the /v1 prefix.
type OpenAIGenerator struct {
	endpoint
	baseURL string
	apiKey  string
	model   string
}

func newOpenAIGenerator(cfg GeneratorConfig) *OpenAIGenerator {
	return &OpenAIGenerator{
		endpoint: newEndpoint("openai", "error.message", cfg.Timeout),
		baseURL:  trimBaseURL(cfg.BaseURL, defaultOpenAIBaseURL),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    strings.TrimSpace(cfg.Model),
	}
}

func (g *OpenAIGenerator) GenerateText(ctx context.Context, prompt Prompt) (string, error) {
	req := openAIChatRequest{
		Model:       g.model,
		Messages:    chatMessages(prompt),
		Temperature: prompt.Temperature,
	}
	if prompt.MaxTokens > 0 {
		req.MaxTokens = prompt.MaxTokens
	}
	header := http.Header{}
	if g.apiKey != "" {
		header.Set("Authorization", "Bearer "+g.apiKey)
	}
	raw, err := g.post(ctx, g.baseURL+"/chat/completions", header, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(gjson.GetBytes(raw, "choices.0.message.content").String())
	if text == "" {
		return "", fmt.Errorf("openai returned no completion")
	}
	return text, nil
}

type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}
