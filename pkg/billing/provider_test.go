package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"personapost/pkg/domain"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewStripeProvider("sk_test_123", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestStripeProviderRetrieveSubscription(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/subscriptions/sub_42" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "sub_42", "object": "subscription", "status": "active",
			"customer": "cus_9", "current_period_end": 1735689600,
			"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_monthly"}}]}
		}`))
	})

	sub, err := p.RetrieveSubscription(context.Background(), "sub_42")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if sub.Status != "active" || sub.PriceID != "price_monthly" || sub.CustomerID != "cus_9" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if !sub.CurrentPeriodEnd.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period end: %v", sub.CurrentPeriodEnd)
	}
}

func TestStripeProviderCancelUsesDelete(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"id": "sub_42", "object": "subscription", "status": "canceled"}`))
	})
	sub, err := p.CancelSubscription(context.Background(), "sub_42")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sub.Status != "canceled" {
		t.Fatalf("unexpected status %q", sub.Status)
	}
}

func TestStripeProviderWrapsAPIErrors(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "No such subscription"}}`))
	})
	_, err := p.RetrieveSubscription(context.Background(), "sub_missing")
	if !errors.Is(err, domain.ErrPaymentProvider) {
		t.Fatalf("expected ErrPaymentProvider, got %v", err)
	}
}

func TestStripeProviderRequiresKeyAndID(t *testing.T) {
	if _, err := NewStripeProvider(" "); err == nil {
		t.Fatalf("expected error for empty key")
	}
	p, _ := NewStripeProvider("sk_test")
	if _, err := p.RetrieveSubscription(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
}
