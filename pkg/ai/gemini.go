package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiGenerator calls the Google AI Studio generateContent API.
type GeminiGenerator struct {
	endpoint
	baseURL string
	apiKey  string
	model   string
}

func newGeminiGenerator(cfg GeneratorConfig) (*GeminiGenerator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	return &GeminiGenerator{
		endpoint: newEndpoint("gemini", "error.message", cfg.Timeout),
		baseURL:  trimBaseURL(cfg.BaseURL, defaultGeminiBaseURL),
		apiKey:   apiKey,
		model:    strings.TrimPrefix(strings.TrimSpace(cfg.Model), "models/"),
	}, nil
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt Prompt) (string, error) {
	temperature := prompt.Temperature
	req := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt.User}}}},
		GenerationConfig: &geminiGenerationConfig{Temperature: &temperature},
	}
	if prompt.MaxTokens > 0 {
		req.GenerationConfig.MaxOutputTokens = prompt.MaxTokens
	}
	if strings.TrimSpace(prompt.System) != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt.System}}}
	}
	header := http.Header{}
	header.Set("x-goog-api-key", g.apiKey)
	raw, err := g.post(ctx, g.baseURL+"/models/"+url.PathEscape(g.model)+":generateContent", header, req)
	if err != nil {
		return "", err
	}
	parts := gjson.GetBytes(raw, "candidates.0.content.parts.#.text").Array()
	if len(parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.String())
	}
	return sb.String(), nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}
