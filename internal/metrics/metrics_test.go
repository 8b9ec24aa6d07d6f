package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGenerationCountsTokens(t *testing.T) {
	r := New("content")
	r.ObserveGeneration("posts", 1200, 2*time.Second)
	r.ObserveGeneration("posts", 300, time.Second)
	r.ObserveGeneration("topics", 10, time.Second)

	if got := testutil.ToFloat64(r.tokensTotal.WithLabelValues("posts")); got != 1500 {
		t.Fatalf("posts tokens = %v, want 1500", got)
	}
	if got := testutil.ToFloat64(r.tokensTotal.WithLabelValues("topics")); got != 10 {
		t.Fatalf("topics tokens = %v, want 10", got)
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.ObserveRequest("GET", "/", 200, time.Millisecond)
	r.ObserveGeneration("posts", 1, time.Millisecond)
	r.GenerationFailed("posts", "GenerationError")
	r.WebhookEvent("invoice.paid", "applied")
	r.SubscriptionsExpired(3)
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New("billing")
	r.ObserveRequest("POST", "POST /api/webhooks/stripe", 200, 10*time.Millisecond)
	r.SubscriptionsExpired(2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`personapost_http_requests_total{method="POST",route="POST /api/webhooks/stripe",service="billing",status="200"} 1`,
		`personapost_billing_subscriptions_expired_total{service="billing"} 2`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
