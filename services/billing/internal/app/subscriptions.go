package app

import (
	"context"
	"fmt"
	"strings"

	"personapost/internal/util"
	"personapost/pkg/domain"
)

// SubscriptionView is a subscription with its access decision at read time.
type SubscriptionView struct {
	domain.Subscription
	HasAccess bool `json:"hasAccess"`
}

func (a *App) view(s domain.Subscription) SubscriptionView {
	return SubscriptionView{Subscription: s, HasAccess: s.HasAccess(a.clock())}
}

// GetSubscription returns the caller's subscription.
func (a *App) GetSubscription(ctx context.Context, userID string) (SubscriptionView, error) {
	sub, err := a.subscriptionOf(ctx, userID)
	if err != nil {
		return SubscriptionView{}, err
	}
	return a.view(sub), nil
}

// Subscribe links the caller to a provider subscription they have paid for.
// The provider subscription must be active or trialing and priced on the
// requested plan. Repeating the call for an already linked subscription
// returns it unchanged, and an open free-access grant is never replaced.
func (a *App) Subscribe(ctx context.Context, userID, planID, stripeID string) (SubscriptionView, error) {
	planID = strings.TrimSpace(planID)
	stripeID = strings.TrimSpace(stripeID)
	if planID == "" {
		return SubscriptionView{}, domain.Validationf("planId required")
	}
	if stripeID == "" {
		return SubscriptionView{}, domain.Validationf("stripeSubscriptionId required")
	}
	plan, ok, err := a.store.GetPlan(ctx, planID)
	if err != nil {
		return SubscriptionView{}, fmt.Errorf("load plan: %w", err)
	}
	if !ok || !plan.IsActive {
		return SubscriptionView{}, domain.NotFoundf("plan %s", planID)
	}
	if a.provider == nil {
		return SubscriptionView{}, fmt.Errorf("%w: provider not configured", domain.ErrPaymentProvider)
	}
	remote, err := a.provider.RetrieveSubscription(ctx, stripeID)
	if err != nil {
		return SubscriptionView{}, err
	}
	if domain.StatusFromProvider(remote.Status) != domain.SubscriptionActive {
		return SubscriptionView{}, domain.Validationf("provider subscription %s is %s", stripeID, remote.Status)
	}
	if plan.StripePriceID == "" || remote.PriceID != plan.StripePriceID {
		return SubscriptionView{}, domain.Validationf("provider subscription %s is not on plan %s", stripeID, plan.ID)
	}

	if linked, ok, err := a.store.GetSubscriptionByStripeID(ctx, stripeID); err != nil {
		return SubscriptionView{}, fmt.Errorf("load subscription: %w", err)
	} else if ok && linked.UserID != userID {
		return SubscriptionView{}, fmt.Errorf("%w: provider subscription belongs to another user", domain.ErrForbidden)
	}
	now := a.clock()
	current, exists, err := a.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return SubscriptionView{}, fmt.Errorf("load subscription: %w", err)
	}
	if exists {
		if current.StripeSubscriptionID == stripeID && current.Status != domain.SubscriptionInactive {
			return a.view(current), nil
		}
		if current.IsFreeAccess() && current.HasAccess(now) {
			return SubscriptionView{}, domain.Validationf("user already has free access")
		}
	}

	sub := domain.NewSubscription(util.NewID(), userID, plan, stripeID, now)
	if exists {
		sub.ID, sub.CreatedAt = current.ID, current.CreatedAt
	}
	if err := a.saveSubscription(ctx, sub); err != nil {
		return SubscriptionView{}, err
	}
	util.LoggerFromContext(ctx).Info("subscription started",
		"user_id", userID, "plan_id", plan.ID, "end", sub.EndDateTime)
	return a.view(sub), nil
}

// CancelSubscription cancels at the provider when the subscription is linked
// to one, then marks the local record canceled. Access persists until the
// end date.
func (a *App) CancelSubscription(ctx context.Context, userID string) (SubscriptionView, error) {
	sub, err := a.subscriptionOf(ctx, userID)
	if err != nil {
		return SubscriptionView{}, err
	}
	if sub.StripeSubscriptionID != "" && a.provider != nil {
		if _, err := a.provider.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			return SubscriptionView{}, err
		}
	}
	sub = domain.CancelSubscription(sub, a.clock())
	if err := a.saveSubscription(ctx, sub); err != nil {
		return SubscriptionView{}, err
	}
	return a.view(sub), nil
}

// RefreshSubscription mirrors the provider status into the local record.
func (a *App) RefreshSubscription(ctx context.Context, userID string) (SubscriptionView, error) {
	sub, err := a.subscriptionOf(ctx, userID)
	if err != nil {
		return SubscriptionView{}, err
	}
	if sub.StripeSubscriptionID == "" {
		return SubscriptionView{}, domain.Validationf("subscription is not linked to the payment provider")
	}
	if a.provider == nil {
		return SubscriptionView{}, fmt.Errorf("%w: provider not configured", domain.ErrPaymentProvider)
	}
	remote, err := a.provider.RetrieveSubscription(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return SubscriptionView{}, err
	}
	sub.Status = domain.StatusFromProvider(remote.Status)
	sub.UpdatedAt = a.clock()
	if err := a.saveSubscription(ctx, sub); err != nil {
		return SubscriptionView{}, err
	}
	return a.view(sub), nil
}

// ListSubscriptions returns every subscription for the admin console.
func (a *App) ListSubscriptions(ctx context.Context) ([]SubscriptionView, error) {
	subs, err := a.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	out := make([]SubscriptionView, 0, len(subs))
	for _, s := range subs {
		out = append(out, a.view(s))
	}
	return out, nil
}

// ExtendSubscription adds days to a user's end date.
func (a *App) ExtendSubscription(ctx context.Context, userID string, days int) (SubscriptionView, error) {
	sub, err := a.subscriptionOf(ctx, userID)
	if err != nil {
		return SubscriptionView{}, err
	}
	if sub, err = domain.ExtendSubscription(sub, days, a.clock()); err != nil {
		return SubscriptionView{}, err
	}
	if err := a.saveSubscription(ctx, sub); err != nil {
		return SubscriptionView{}, err
	}
	return a.view(sub), nil
}

// GrantFreeAccess gives a user open-ended access, creating the subscription
// record when the user has none.
func (a *App) GrantFreeAccess(ctx context.Context, userID string) (SubscriptionView, error) {
	sub, ok, err := a.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return SubscriptionView{}, fmt.Errorf("load subscription: %w", err)
	}
	now := a.clock()
	if !ok {
		if _, found, err := a.store.GetUserByID(ctx, userID); err != nil {
			return SubscriptionView{}, fmt.Errorf("load user: %w", err)
		} else if !found {
			return SubscriptionView{}, domain.NotFoundf("user %s", userID)
		}
		sub = domain.Subscription{ID: util.NewID(), UserID: userID, StartDateTime: now, CreatedAt: now}
	}
	sub = domain.GrantFreeAccess(sub, now)
	if err := a.saveSubscription(ctx, sub); err != nil {
		return SubscriptionView{}, err
	}
	return a.view(sub), nil
}

func (a *App) subscriptionOf(ctx context.Context, userID string) (domain.Subscription, error) {
	sub, ok, err := a.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("load subscription: %w", err)
	}
	if !ok {
		return domain.Subscription{}, domain.NotFoundf("subscription for user %s", userID)
	}
	return sub, nil
}

func (a *App) saveSubscription(ctx context.Context, sub domain.Subscription) error {
	if err := a.store.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}
