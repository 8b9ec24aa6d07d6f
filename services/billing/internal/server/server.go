package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"personapost/internal/metrics"
	"personapost/internal/util"
	"personapost/pkg/billing"
	"personapost/pkg/domain"
	"personapost/services/billing/internal/app"
)

// TokenVerifier resolves a bearer token to the caller identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// WebhookVerifier checks the provider signature of a webhook payload.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (billing.WebhookEvent, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier TokenVerifier
	// Webhooks is optional; without it the webhook route is not served.
	Webhooks       WebhookVerifier
	Metrics        *metrics.Registry
	CORS           util.CORSConfig
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the billing service.
type Server struct {
	app      *app.App
	verifier TokenVerifier
	webhooks WebhookVerifier
	metrics  *metrics.Registry
	cors     util.CORSConfig
	proxies  *util.TrustedProxies
	mux      *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	s := &Server{
		app:      cfg.App,
		verifier: cfg.TokenVerifier,
		webhooks: cfg.Webhooks,
		metrics:  cfg.Metrics,
		cors:     cfg.CORS,
		proxies:  cfg.TrustedProxies,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var observers []util.RequestObserver
	if s.metrics != nil {
		observers = append(observers, s.metrics.ObserveRequest)
	}
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.cors, s.mux)), observers...))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.Handle("GET /api/plans", s.authenticated(s.handleListPlans))
	s.mux.Handle("GET /api/subscription", s.authenticated(s.handleGetSubscription))
	s.mux.Handle("POST /api/subscription", s.authenticated(s.handleSubscribe))
	s.mux.Handle("POST /api/subscription/cancel", s.authenticated(s.handleCancel))
	s.mux.Handle("POST /api/subscription/refresh", s.authenticated(s.handleRefresh))
	if s.webhooks != nil {
		s.mux.HandleFunc("POST /api/webhooks/stripe", s.handleStripeWebhook)
	}

	s.mux.Handle("GET /api/admin/subscriptions", s.adminOnly(s.handleListSubscriptions))
	s.mux.Handle("POST /api/admin/subscriptions/{userId}/extend", s.adminOnly(s.handleExtend))
	s.mux.Handle("POST /api/admin/subscriptions/{userId}/free-access", s.adminOnly(s.handleFreeAccess))
	s.mux.Handle("GET /api/admin/plans", s.adminOnly(s.handleListAllPlans))
	s.mux.Handle("POST /api/admin/plans", s.adminOnly(s.handleCreatePlan))
	s.mux.Handle("PUT /api/admin/plans/{id}", s.adminOnly(s.handleUpdatePlan))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.app.Ready(ctx); err != nil {
		util.LoggerFromContext(ctx).Warn("readiness check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "billing.token.verify", "fail", "reason", "missing_token")
			writeError(w, r, domain.ErrUnauthorized)
			return
		}
		caller, err := s.verifier.Verify(token)
		if err != nil {
			s.audit(r, "billing.token.verify", "fail", "reason", "invalid_signature_or_claims")
			writeError(w, r, domain.ErrUnauthorized)
			return
		}
		next(w, r, caller)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
		if !caller.IsAdmin {
			s.audit(r, "billing.admin.authorize", "fail", "user_id", caller.UserID, "reason", "forbidden")
			writeError(w, r, domain.ErrForbidden)
			return
		}
		next(w, r, caller)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.proxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		return domain.Validationf("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Message   string `json:"message"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		msg = "internal error"
	case status == http.StatusBadGateway:
		util.LoggerFromContext(r.Context()).Warn("payment provider failure", "err", err)
	}
	writeJSON(w, status, errorResponse{
		Message:   msg,
		Error:     domain.ErrorKind(err),
		RequestID: util.RequestIDFromContext(r.Context()),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPaymentProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
