package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedGenerator throttles outbound calls to the wrapped generator
// with a process-wide token bucket. Callers block until a token is free or
// their context ends.
type RateLimitedGenerator struct {
	next    TextGenerator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator allows perSecond calls on average with the given
// burst. A non-positive perSecond disables throttling.
func NewRateLimitedGenerator(next TextGenerator, perSecond float64, burst int) TextGenerator {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedGenerator{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// GenerateText waits for a token and delegates.
func (g *RateLimitedGenerator) GenerateText(ctx context.Context, prompt Prompt) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generation throttled: %w", err)
	}
	return g.next.GenerateText(ctx, prompt)
}
