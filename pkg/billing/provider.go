package billing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"personapost/pkg/domain"
)

// ProviderSubscription is the provider-side view of a subscription.
type ProviderSubscription struct {
	ID               string
	Status           string
	CustomerID       string
	PriceID          string
	CurrentPeriodEnd time.Time
}

// PaymentProvider is the source of truth for subscriptions. The local
// Subscription record mirrors it.
type PaymentProvider interface {
	RetrieveSubscription(ctx context.Context, id string) (ProviderSubscription, error)
	CancelSubscription(ctx context.Context, id string) (ProviderSubscription, error)
}

// StripeOption customises the Stripe backend.
type StripeOption func(*stripe.BackendConfig)

// WithBaseURL points the client at another API host, e.g. stripe-mock.
func WithBaseURL(url string) StripeOption {
	return func(cfg *stripe.BackendConfig) {
		if strings.TrimSpace(url) != "" {
			cfg.URL = stripe.String(strings.TrimSpace(url))
		}
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) StripeOption {
	return func(cfg *stripe.BackendConfig) {
		cfg.HTTPClient = c
	}
}

// StripeProvider implements PaymentProvider with the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider builds a provider authenticated with secretKey.
// Retries are disabled; a failed call surfaces to the caller.
func NewStripeProvider(secretKey string, opts ...StripeOption) (*StripeProvider, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key required")
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	backends := &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
	}
	return &StripeProvider{api: client.New(secretKey, backends)}, nil
}

// RetrieveSubscription loads a subscription by ID.
func (p *StripeProvider) RetrieveSubscription(ctx context.Context, id string) (ProviderSubscription, error) {
	if strings.TrimSpace(id) == "" {
		return ProviderSubscription{}, domain.Validationf("stripe subscription id required")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return ProviderSubscription{}, fmt.Errorf("%w: retrieve subscription %s: %v", domain.ErrPaymentProvider, id, err)
	}
	return fromStripe(sub), nil
}

// CancelSubscription cancels a subscription immediately at the provider.
func (p *StripeProvider) CancelSubscription(ctx context.Context, id string) (ProviderSubscription, error) {
	if strings.TrimSpace(id) == "" {
		return ProviderSubscription{}, domain.Validationf("stripe subscription id required")
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Cancel(id, params)
	if err != nil {
		return ProviderSubscription{}, fmt.Errorf("%w: cancel subscription %s: %v", domain.ErrPaymentProvider, id, err)
	}
	return fromStripe(sub), nil
}

func fromStripe(sub *stripe.Subscription) ProviderSubscription {
	out := ProviderSubscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				out.PriceID = item.Price.ID
				break
			}
		}
	}
	return out
}
