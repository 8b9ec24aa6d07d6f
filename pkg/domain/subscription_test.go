package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monthly = Plan{ID: "plan-monthly", Name: "Monthly", DurationDays: 30}

func TestNewSubscriptionCoversPlanDuration(t *testing.T) {
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	s := NewSubscription("s1", "u1", monthly, "sub_123", start)
	assert.Equal(t, SubscriptionActive, s.Status)
	assert.Equal(t, start.AddDate(0, 0, 30), s.EndDateTime)
	assert.True(t, s.HasAccess(start.Add(time.Hour)))
	assert.False(t, s.HasAccess(s.EndDateTime))
}

func TestRenewExtendsFromPreviousEnd(t *testing.T) {
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	s := NewSubscription("s1", "u1", monthly, "sub_123", start)
	prevEnd := s.EndDateTime

	// Webhook arrives two days after the period already ended.
	late := prevEnd.AddDate(0, 0, 2)
	renewed := RenewSubscription(s, monthly, "", late)
	assert.Equal(t, prevEnd.AddDate(0, 0, 30), renewed.EndDateTime)
	assert.Equal(t, "sub_123", renewed.StripeSubscriptionID)
	assert.Equal(t, SubscriptionActive, renewed.Status)
}

func TestRenewClearsCancellation(t *testing.T) {
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	s := CancelSubscription(NewSubscription("s1", "u1", monthly, "sub_1", start), start.AddDate(0, 0, 3))
	require.NotNil(t, s.CancelDateTime)
	renewed := RenewSubscription(s, monthly, "sub_2", start.AddDate(0, 0, 30))
	assert.Nil(t, renewed.CancelDateTime)
	assert.Equal(t, "sub_2", renewed.StripeSubscriptionID)
}

func TestCancelKeepsAccessUntilEnd(t *testing.T) {
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	s := NewSubscription("s1", "u1", monthly, "sub_1", start)
	canceled := CancelSubscription(s, start.AddDate(0, 0, 5))
	assert.Equal(t, SubscriptionCanceled, canceled.Status)
	assert.Equal(t, s.EndDateTime, canceled.EndDateTime)
	assert.True(t, canceled.HasAccess(start.AddDate(0, 0, 10)))
	assert.False(t, canceled.HasAccess(s.EndDateTime.Add(time.Second)))
}

func TestExtendSubscription(t *testing.T) {
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	s := NewSubscription("s1", "u1", monthly, "", start)

	ext, err := ExtendSubscription(s, 7, start)
	require.NoError(t, err)
	assert.Equal(t, s.EndDateTime.AddDate(0, 0, 7), ext.EndDateTime)

	_, err = ExtendSubscription(s, 0, start)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFreeAccessIsSticky(t *testing.T) {
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	free := GrantFreeAccess(NewSubscription("s1", "u1", monthly, "", start), start)
	assert.True(t, free.IsFreeAccess())
	assert.True(t, free.HasAccess(time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)))

	ext, err := ExtendSubscription(free, 30, start)
	require.NoError(t, err)
	assert.Equal(t, FreeAccessUntil, ext.EndDateTime)
	assert.Equal(t, FreeAccessUntil, RenewSubscription(free, monthly, "", start).EndDateTime)
}

func TestInactiveHasNoAccess(t *testing.T) {
	s := Subscription{Status: SubscriptionInactive, EndDateTime: FreeAccessUntil}
	assert.False(t, s.HasAccess(time.Now()))
}

func TestStatusFromProvider(t *testing.T) {
	assert.Equal(t, SubscriptionActive, StatusFromProvider("active"))
	assert.Equal(t, SubscriptionActive, StatusFromProvider("trialing"))
	assert.Equal(t, SubscriptionCanceled, StatusFromProvider("canceled"))
	assert.Equal(t, SubscriptionInactive, StatusFromProvider("past_due"))
}
