package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"personapost/internal/metrics"
	"personapost/internal/util"
	"personapost/pkg/billing"
	"personapost/pkg/domain"
	"personapost/pkg/store"
)

// Config holds runtime configuration for the billing application.
type Config struct {
	Store store.Store
	// Provider is optional; without it subscriptions carry no provider
	// side effects and refresh is unavailable.
	Provider billing.PaymentProvider
	Metrics  *metrics.Registry
	Now      func() time.Time
}

// App mirrors payment-provider subscriptions into local records and
// manages plans.
type App struct {
	store    store.Store
	provider billing.PaymentProvider
	metrics  *metrics.Registry
	now      func() time.Time
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	a := &App{
		store:    cfg.Store,
		provider: cfg.Provider,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
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

func (a *App) clock() time.Time {
	return a.now().UTC()
}

// PlanInput carries plan fields. Nil fields keep their current value on update.
type PlanInput struct {
	Name          *string
	Price         *float64
	Currency      *string
	DurationDays  *int
	StripePriceID *string
	IsActive      *bool
}

// ListPlans returns plans, only active ones unless all is set.
func (a *App) ListPlans(ctx context.Context, all bool) ([]domain.Plan, error) {
	return a.store.ListPlans(ctx, !all)
}

// CreatePlan stores a new plan. Name and a positive duration are required.
func (a *App) CreatePlan(ctx context.Context, in PlanInput) (domain.Plan, error) {
	now := a.clock()
	p := domain.Plan{
		ID:        util.NewID(),
		Currency:  "usd",
		IsActive:  true,
		CreatedAt: now,
	}
	p, err := applyPlan(p, in)
	if err != nil {
		return domain.Plan{}, err
	}
	p.UpdatedAt = now
	if err := a.savePlan(ctx, p); err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

// UpdatePlan applies in to an existing plan.
func (a *App) UpdatePlan(ctx context.Context, id string, in PlanInput) (domain.Plan, error) {
	p, ok, err := a.store.GetPlan(ctx, id)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("load plan: %w", err)
	}
	if !ok {
		return domain.Plan{}, domain.NotFoundf("plan %s", id)
	}
	if p, err = applyPlan(p, in); err != nil {
		return domain.Plan{}, err
	}
	p.UpdatedAt = a.clock()
	if err := a.savePlan(ctx, p); err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

func (a *App) savePlan(ctx context.Context, p domain.Plan) error {
	if p.StripePriceID != "" {
		other, ok, err := a.store.GetPlanByStripePrice(ctx, p.StripePriceID)
		if err != nil {
			return fmt.Errorf("load plan by price: %w", err)
		}
		if ok && other.ID != p.ID {
			return domain.Validationf("stripe price %s already belongs to plan %s", p.StripePriceID, other.ID)
		}
	}
	if err := a.store.SavePlan(ctx, p); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func applyPlan(p domain.Plan, in PlanInput) (domain.Plan, error) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Currency != nil {
		p.Currency = strings.ToLower(strings.TrimSpace(*in.Currency))
	}
	if in.DurationDays != nil {
		p.DurationDays = *in.DurationDays
	}
	if in.StripePriceID != nil {
		p.StripePriceID = strings.TrimSpace(*in.StripePriceID)
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	switch {
	case p.Name == "":
		return p, domain.Validationf("plan name required")
	case p.DurationDays <= 0:
		return p, domain.Validationf("durationDays must be positive")
	case p.Price < 0:
		return p, domain.Validationf("price must not be negative")
	}
	return p, nil
}
