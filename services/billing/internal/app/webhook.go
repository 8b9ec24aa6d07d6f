package app

import (
	"context"
	"fmt"

	"personapost/internal/util"
	"personapost/pkg/billing"
	"personapost/pkg/domain"
)

// Webhook outcomes reported to callers and metrics.
const (
	OutcomeApplied = "applied"
	OutcomeIgnored = "ignored"
)

// HandleWebhook applies a verified provider event to the local mirror.
func (a *App) HandleWebhook(ctx context.Context, ev billing.WebhookEvent) (string, error) {
	outcome, err := a.applyWebhook(ctx, ev)
	if err != nil {
		a.metrics.WebhookEvent(ev.Type, "error")
		return "", err
	}
	a.metrics.WebhookEvent(ev.Type, outcome)
	util.LoggerFromContext(ctx).Info("billing webhook handled",
		"event_id", ev.ID, "type", ev.Type, "outcome", outcome)
	return outcome, nil
}

func (a *App) applyWebhook(ctx context.Context, ev billing.WebhookEvent) (string, error) {
	switch {
	case ev.IsInvoicePaid():
		return a.invoicePaid(ctx, ev)
	case ev.Type == billing.EventSubscriptionDeleted:
		return a.subscriptionDeleted(ctx, ev)
	default:
		return OutcomeIgnored, nil
	}
}

// invoicePaid extends coverage from the previous end date by the duration of
// the plan the provider subscription is priced on. Each invoice is applied at
// most once; a failed attempt releases its claim so the provider's retry runs.
func (a *App) invoicePaid(ctx context.Context, ev billing.WebhookEvent) (outcome string, err error) {
	logger := util.LoggerFromContext(ctx)
	key := ev.DeliveryKey()
	if ev.CustomerEmail == "" || ev.SubscriptionID == "" || key == "" {
		logger.Warn("invoice event without customer email, subscription or id", "event_id", ev.ID)
		return OutcomeIgnored, nil
	}
	claimed, err := a.store.ClaimWebhookDelivery(ctx, key, ev.Type, a.clock())
	if err != nil {
		return "", fmt.Errorf("claim webhook delivery: %w", err)
	}
	if !claimed {
		logger.Info("invoice already applied", "event_id", ev.ID, "delivery_key", key)
		return OutcomeIgnored, nil
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := a.store.ReleaseWebhookDelivery(context.WithoutCancel(ctx), key); rerr != nil {
			logger.Error("release webhook delivery failed", "delivery_key", key, "err", rerr)
		}
	}()
	return a.applyInvoice(ctx, ev)
}

func (a *App) applyInvoice(ctx context.Context, ev billing.WebhookEvent) (string, error) {
	logger := util.LoggerFromContext(ctx)
	user, ok, err := a.store.GetUserByEmail(ctx, ev.CustomerEmail)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if !ok {
		logger.Warn("invoice paid for unknown customer", "event_id", ev.ID)
		return OutcomeIgnored, nil
	}
	if a.provider == nil {
		return "", fmt.Errorf("%w: provider not configured", domain.ErrPaymentProvider)
	}
	remote, err := a.provider.RetrieveSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return "", err
	}
	plan, ok, err := a.store.GetPlanByStripePrice(ctx, remote.PriceID)
	if err != nil {
		return "", fmt.Errorf("load plan: %w", err)
	}
	if !ok {
		return "", domain.NotFoundf("plan for stripe price %q", remote.PriceID)
	}

	now := a.clock()
	sub, exists, err := a.store.GetSubscriptionByUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("load subscription: %w", err)
	}
	if exists {
		sub = domain.RenewSubscription(sub, plan, ev.SubscriptionID, now)
	} else {
		sub = domain.NewSubscription(util.NewID(), user.ID, plan, ev.SubscriptionID, now)
	}
	if err := a.saveSubscription(ctx, sub); err != nil {
		return "", err
	}
	logger.Info("subscription renewed", "user_id", user.ID, "plan_id", plan.ID, "end", sub.EndDateTime)
	return OutcomeApplied, nil
}

func (a *App) subscriptionDeleted(ctx context.Context, ev billing.WebhookEvent) (string, error) {
	sub, ok, err := a.store.GetSubscriptionByStripeID(ctx, ev.SubscriptionID)
	if err != nil {
		return "", fmt.Errorf("load subscription: %w", err)
	}
	if !ok || sub.Status == domain.SubscriptionCanceled {
		return OutcomeIgnored, nil
	}
	sub = domain.CancelSubscription(sub, a.clock())
	if err := a.saveSubscription(ctx, sub); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}
