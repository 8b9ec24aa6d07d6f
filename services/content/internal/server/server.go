package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"personapost/internal/metrics"
	"personapost/internal/ratelimit"
	"personapost/internal/util"
	"personapost/pkg/domain"
	"personapost/services/content/internal/app"
)

// TokenVerifier resolves a bearer token to the caller identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  TokenVerifier
	Limiter        ratelimit.Limiter
	Metrics        *metrics.Registry
	CORS           util.CORSConfig
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the content service.
type Server struct {
	app      *app.App
	verifier TokenVerifier
	limiter  ratelimit.Limiter
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
		limiter:  cfg.Limiter,
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

	// posts
	s.mux.Handle("GET /api/posts", s.authenticated(s.handleListPosts))
	s.mux.Handle("POST /api/posts", s.authenticated(s.handleCreatePost))
	s.mux.Handle("GET /api/posts/calendar", s.authenticated(s.handleCalendar))
	s.mux.Handle("GET /api/posts/{id}", s.authenticated(s.handleGetPost))
	s.mux.Handle("PATCH /api/posts/{id}", s.authenticated(s.handleUpdatePost))
	s.mux.Handle("DELETE /api/posts/{id}", s.authenticated(s.handleDeletePost))
	s.mux.Handle("POST /api/posts/{id}/schedule", s.authenticated(s.handleSchedulePost))
	s.mux.Handle("POST /api/posts/{id}/cancel", s.authenticated(s.handleCancelPost))
	s.mux.Handle("POST /api/posts/{id}/reschedule", s.authenticated(s.handleReschedulePost))

	// generation
	s.mux.Handle("POST /api/generate/posts", s.authenticated(s.rateLimited(s.handleGeneratePosts)))
	s.mux.Handle("GET /api/topics", s.authenticated(s.handleGetTopics))
	s.mux.Handle("POST /api/topics/generate", s.authenticated(s.rateLimited(s.handleGenerateTopics)))
	s.mux.Handle("GET /api/persona", s.authenticated(s.handleGetPersona))
	s.mux.Handle("PUT /api/persona", s.authenticated(s.handleUpsertPersona))
	s.mux.Handle("POST /api/persona/generate", s.authenticated(s.rateLimited(s.handleGeneratePersona)))

	// admin
	s.mux.Handle("GET /api/admin/prompts", s.adminOnly(s.handleListPrompts))
	s.mux.Handle("POST /api/admin/prompts", s.adminOnly(s.handleCreatePrompt))
	s.mux.Handle("PUT /api/admin/prompts/{id}", s.adminOnly(s.handleUpdatePrompt))
	s.mux.Handle("DELETE /api/admin/prompts/{id}", s.adminOnly(s.handleDeletePrompt))
	s.mux.Handle("GET /api/admin/usage", s.adminOnly(s.handleUsageReport))
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

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := s.authorize(r)
		if !ok {
			writeError(w, r, domain.ErrUnauthorized)
			return
		}
		next(w, r, caller)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
		if !caller.IsAdmin {
			s.audit(r, "content.admin.authorize", "fail", "user_id", caller.UserID, "reason", "forbidden")
			writeError(w, r, domain.ErrForbidden)
			return
		}
		s.audit(r, "content.admin.authorize", "success", "user_id", caller.UserID)
		next(w, r, caller)
	})
}

func (s *Server) authorize(r *http.Request) (domain.Identity, bool) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "content.token.verify", "fail", "reason", "missing_token")
		return domain.Identity{}, false
	}
	caller, err := s.verifier.Verify(token)
	if err != nil {
		s.audit(r, "content.token.verify", "fail", "reason", "invalid_signature_or_claims")
		return domain.Identity{}, false
	}
	return caller, true
}

func (s *Server) rateLimited(next authHandler) authHandler {
	return func(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
		if s.limiter == nil {
			next(w, r, caller)
			return
		}
		d := s.limiter.Allow(r.Context(), "generate:"+caller.UserID)
		if !d.Allowed {
			s.audit(r, "content.generate.ratelimit", "fail", "user_id", caller.UserID)
			secs := int(d.RetryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Message:   "too many generation requests",
				Error:     "RateLimitError",
				RequestID: util.RequestIDFromContext(r.Context()),
			})
			return
		}
		next(w, r, caller)
	}
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
	if token == "" {
		return "", false
	}
	return token, true
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

// writeError maps the error taxonomy to a status code. Internal errors are
// logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		msg = "internal error"
	} else if status >= http.StatusBadGateway {
		util.LoggerFromContext(r.Context()).Warn("upstream failure", "err", err)
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
	case errors.Is(err, domain.ErrGeneration), errors.Is(err, domain.ErrParse), errors.Is(err, domain.ErrPaymentProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
