package store

import (
	"context"
	"time"

	"personapost/pkg/domain"
)

// Store defines persistence operations for users, posts, personas, the token
// ledger, topics, prompts, plans and subscriptions.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)

	// posts
	SavePost(ctx context.Context, p domain.Post) error
	GetPost(ctx context.Context, id string) (domain.Post, bool, error)
	ListPostsByUser(ctx context.Context, userID string) ([]domain.Post, error)
	ListScheduledPosts(ctx context.Context, userID string, from, to time.Time) ([]domain.Post, error)
	DeletePost(ctx context.Context, id string) (bool, error)

	// personas
	SavePersona(ctx context.Context, p domain.Persona) error
	GetPersona(ctx context.Context, userID string) (domain.Persona, bool, error)

	// token ledger
	AppendTokenUsage(ctx context.Context, u domain.TokenUsage) error
	UsageTotals(ctx context.Context, from, to time.Time) (domain.UsageTotals, error)
	DailyUsage(ctx context.Context, from, to time.Time) ([]domain.DailyUsage, error)

	// topics
	SaveCustomTopics(ctx context.Context, t domain.CustomTopics) error
	GetCustomTopics(ctx context.Context, userID string) (domain.CustomTopics, bool, error)

	// prompts
	SavePrompt(ctx context.Context, p domain.Prompt) error
	GetPrompt(ctx context.Context, id string) (domain.Prompt, bool, error)
	GetPromptByName(ctx context.Context, name string, typ domain.PromptType) (domain.Prompt, bool, error)
	ListPrompts(ctx context.Context) ([]domain.Prompt, error)
	DeletePrompt(ctx context.Context, id string) (bool, error)

	// plans
	SavePlan(ctx context.Context, p domain.Plan) error
	GetPlan(ctx context.Context, id string) (domain.Plan, bool, error)
	GetPlanByStripePrice(ctx context.Context, priceID string) (domain.Plan, bool, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]domain.Plan, error)

	// subscriptions
	SaveSubscription(ctx context.Context, s domain.Subscription) error
	GetSubscriptionByUser(ctx context.Context, userID string) (domain.Subscription, bool, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeID string) (domain.Subscription, bool, error)
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)

	// webhook deliveries
	// ClaimWebhookDelivery records key as processed and reports whether this
	// call recorded it; false means it was already claimed.
	ClaimWebhookDelivery(ctx context.Context, key, eventType string, at time.Time) (bool, error)
	ReleaseWebhookDelivery(ctx context.Context, key string) error
}

// Pinger is an optional capability used by health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
