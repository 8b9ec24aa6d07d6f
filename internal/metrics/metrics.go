// Package metrics owns the Prometheus collectors shared by the services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups the collectors for one service process.
type Registry struct {
	reg *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	generationTime  *prometheus.HistogramVec
	generationFails *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	expiredSubs     prometheus.Counter
}

// New registers all collectors under namespace "personapost" with a
// "service" const label.
func New(service string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	labels := prometheus.Labels{"service": service}
	r := &Registry{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personapost", Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.", ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "personapost", Name: "http_request_duration_seconds",
			Help: "HTTP request latency.", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personapost", Name: "llm_tokens_total",
			Help: "Tokens metered per generation purpose.", ConstLabels: labels,
		}, []string{"purpose"}),
		generationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "personapost", Name: "llm_generation_duration_seconds",
			Help: "Latency of text generation calls.", ConstLabels: labels,
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"purpose"}),
		generationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personapost", Name: "llm_generation_failures_total",
			Help: "Failed generation calls by purpose and error kind.", ConstLabels: labels,
		}, []string{"purpose", "kind"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personapost", Name: "billing_webhook_events_total",
			Help: "Payment webhook events by type and outcome.", ConstLabels: labels,
		}, []string{"type", "outcome"}),
		expiredSubs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "personapost", Name: "billing_subscriptions_expired_total",
			Help: "Subscriptions moved to inactive by the expiry sweep.", ConstLabels: labels,
		}),
	}
	reg.MustRegister(r.httpRequests, r.httpDuration, r.tokensTotal, r.generationTime,
		r.generationFails, r.webhookEvents, r.expiredSubs)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveRequest matches util.RequestObserver.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveGeneration records one metered generation call.
func (r *Registry) ObserveGeneration(purpose string, tokens int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.tokensTotal.WithLabelValues(purpose).Add(float64(tokens))
	r.generationTime.WithLabelValues(purpose).Observe(elapsed.Seconds())
}

func (r *Registry) GenerationFailed(purpose, kind string) {
	if r == nil {
		return
	}
	r.generationFails.WithLabelValues(purpose, kind).Inc()
}

func (r *Registry) WebhookEvent(eventType, outcome string) {
	if r == nil {
		return
	}
	r.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (r *Registry) SubscriptionsExpired(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.expiredSubs.Add(float64(n))
}
