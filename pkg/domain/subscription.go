package domain

import "time"

// FreeAccessUntil is the sentinel end date that encodes free access.
var FreeAccessUntil = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// NewSubscription starts a subscription on plan at start.
func NewSubscription(id, userID string, plan Plan, stripeID string, start time.Time) Subscription {
	start = start.UTC()
	return Subscription{
		ID:                   id,
		UserID:               userID,
		PlanID:               plan.ID,
		StripeSubscriptionID: stripeID,
		StartDateTime:        start,
		EndDateTime:          start.AddDate(0, 0, plan.DurationDays),
		Status:               SubscriptionActive,
		CreatedAt:            start,
		UpdatedAt:            start,
	}
}

// RenewSubscription extends coverage by the plan duration counted from the
// previous end date, so a late webhook does not open a gap or a double
// charge window.
func RenewSubscription(s Subscription, plan Plan, stripeID string, now time.Time) Subscription {
	if !s.IsFreeAccess() {
		s.EndDateTime = s.EndDateTime.AddDate(0, 0, plan.DurationDays)
	}
	s.PlanID = plan.ID
	if stripeID != "" {
		s.StripeSubscriptionID = stripeID
	}
	s.Status = SubscriptionActive
	s.CancelDateTime = nil
	s.UpdatedAt = now.UTC()
	return s
}

// ExtendSubscription adds days to the current end date.
func ExtendSubscription(s Subscription, days int, now time.Time) (Subscription, error) {
	if days <= 0 {
		return s, Validationf("days must be positive")
	}
	if !s.IsFreeAccess() {
		s.EndDateTime = s.EndDateTime.AddDate(0, 0, days)
	}
	s.UpdatedAt = now.UTC()
	return s, nil
}

// GrantFreeAccess moves the end date to the free-access sentinel.
func GrantFreeAccess(s Subscription, now time.Time) Subscription {
	s.EndDateTime = FreeAccessUntil
	s.Status = SubscriptionActive
	s.CancelDateTime = nil
	s.UpdatedAt = now.UTC()
	return s
}

// CancelSubscription marks s canceled; access persists until EndDateTime.
func CancelSubscription(s Subscription, now time.Time) Subscription {
	now = now.UTC()
	s.Status = SubscriptionCanceled
	s.CancelDateTime = &now
	s.UpdatedAt = now
	return s
}

// IsFreeAccess reports whether s carries the free-access sentinel.
func (s Subscription) IsFreeAccess() bool {
	return !s.EndDateTime.Before(FreeAccessUntil)
}

// HasAccess reports whether s grants access at now.
func (s Subscription) HasAccess(now time.Time) bool {
	if s.Status == SubscriptionInactive {
		return false
	}
	return now.Before(s.EndDateTime)
}

// StatusFromProvider maps a payment-provider status string.
func StatusFromProvider(status string) SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return SubscriptionActive
	case "canceled":
		return SubscriptionCanceled
	default:
		return SubscriptionInactive
	}
}
