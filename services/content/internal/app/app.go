package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"personapost/internal/metrics"
	"personapost/pkg/ai"
	"personapost/pkg/domain"
	"personapost/pkg/store"
)

// Config holds runtime configuration for the content application.
type Config struct {
	Store     store.Store
	Generator ai.TextGenerator
	Tokenizer ai.Tokenizer
	// Cache is optional; without it usage reports are computed on every call.
	Cache   redis.UniversalClient
	Metrics *metrics.Registry

	CostPerMillionTokens float64
	MaxTokens            int
	Temperature          float64
	TopicCount           int
	UsageCacheTTL        time.Duration

	Now func() time.Time
}

// App implements post lifecycle, persona, generation, prompt and usage
// operations on top of the store and the text generator.
type App struct {
	store     store.Store
	generator ai.TextGenerator
	tokenizer ai.Tokenizer
	cache     redis.UniversalClient
	metrics   *metrics.Registry

	costPerMillion float64
	maxTokens      int
	temperature    float64
	topicCount     int
	usageTTL       time.Duration
	now            func() time.Time
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("text generator required")
	}
	if cfg.Tokenizer == nil {
		return nil, errors.New("tokenizer required")
	}
	if cfg.CostPerMillionTokens < 0 {
		return nil, errors.New("cost per million tokens must not be negative")
	}
	a := &App{
		store:          cfg.Store,
		generator:      cfg.Generator,
		tokenizer:      cfg.Tokenizer,
		cache:          cfg.Cache,
		metrics:        cfg.Metrics,
		costPerMillion: cfg.CostPerMillionTokens,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		topicCount:     cfg.TopicCount,
		usageTTL:       cfg.UsageCacheTTL,
		now:            cfg.Now,
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 1024
	}
	if a.temperature <= 0 {
		a.temperature = 0.7
	}
	if a.topicCount <= 0 {
		a.topicCount = 10
	}
	if a.usageTTL <= 0 {
		a.usageTTL = 5 * time.Minute
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Ready reports whether the backing store answers.
func (a *App) Ready(ctx context.Context) error {
	if p, ok := a.store.(store.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// CheckAccess enforces the subscription gate on generation. Admins bypass it.
func (a *App) CheckAccess(ctx context.Context, caller domain.Identity) error {
	if caller.IsAdmin {
		return nil
	}
	sub, ok, err := a.store.GetSubscriptionByUser(ctx, caller.UserID)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	if !ok || !sub.HasAccess(a.now()) {
		return fmt.Errorf("%w: active subscription required", domain.ErrForbidden)
	}
	return nil
}

func (a *App) clock() time.Time {
	return a.now().UTC()
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
