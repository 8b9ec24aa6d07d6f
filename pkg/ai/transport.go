package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultProviderTimeout = 120 * time.Second
	maxProviderResponse    = 4 << 20
)

// endpoint posts JSON to one LLM provider and returns the raw response body.
// errPath is the gjson path of the provider's error message.
type endpoint struct {
	provider   string
	errPath    string
	httpClient *http.Client
}

func newEndpoint(provider, errPath string, timeout time.Duration) endpoint {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return endpoint{provider: provider, errPath: errPath, httpClient: &http.Client{Timeout: timeout}}
}

func (e endpoint) post(ctx context.Context, url string, header http.Header, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", e.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", e.provider, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponse))
	if err != nil {
		return nil, fmt.Errorf("%s read: %w", e.provider, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if msg := gjson.GetBytes(raw, e.errPath).String(); strings.TrimSpace(msg) != "" {
			return nil, fmt.Errorf("%s api error: %s", e.provider, msg)
		}
		return nil, fmt.Errorf("%s api error: %s", e.provider, resp.Status)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%s returned a non-JSON body", e.provider)
	}
	return raw, nil
}

func trimBaseURL(baseURL, fallback string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return fallback
	}
	return baseURL
}

func chatMessages(prompt Prompt) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if strings.TrimSpace(prompt.System) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: prompt.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: prompt.User})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
