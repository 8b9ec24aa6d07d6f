package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaGenerator uses a local Ollama daemon's non-streaming /api/chat.
type OllamaGenerator struct {
	endpoint
	baseURL string
	model   string
}

func newOllamaGenerator(cfg GeneratorConfig) *OllamaGenerator {
	return &OllamaGenerator{
		endpoint: newEndpoint("ollama", "error", cfg.Timeout),
		baseURL:  trimBaseURL(cfg.BaseURL, defaultOllamaBaseURL),
		model:    strings.TrimSpace(cfg.Model),
	}
}

func (g *OllamaGenerator) GenerateText(ctx context.Context, prompt Prompt) (string, error) {
	req := ollamaRequest{
		Model:    g.model,
		Messages: chatMessages(prompt),
		Options:  ollamaOptions{Temperature: prompt.Temperature, NumPredict: prompt.MaxTokens},
	}
	raw, err := g.post(ctx, g.baseURL+"/api/chat", nil, req)
	if err != nil {
		return "", err
	}
	text := gjson.GetBytes(raw, "message.content").String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("ollama returned an empty message")
	}
	return text, nil
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}
