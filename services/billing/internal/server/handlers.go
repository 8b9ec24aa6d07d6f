package server

import (
	"io"
	"net/http"

	"personapost/pkg/domain"
	"personapost/services/billing/internal/app"
)

// Stripe payloads stay well below this.
const maxWebhookBytes = 64 << 10

type subscribeRequest struct {
	PlanID               string `json:"planId"`
	StripeSubscriptionID string `json:"stripeSubscriptionId"`
}

type extendRequest struct {
	Days int `json:"days"`
}

type planRequest struct {
	Name          *string  `json:"name"`
	Price         *float64 `json:"price"`
	Currency      *string  `json:"currency"`
	DurationDays  *int     `json:"durationDays"`
	StripePriceID *string  `json:"stripePriceId"`
	IsActive      *bool    `json:"isActive"`
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	s.listPlans(w, r, false)
}

func (s *Server) handleListAllPlans(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	s.listPlans(w, r, true)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request, all bool) {
	plans, err := s.app.ListPlans(r.Context(), all)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": plans, "count": len(plans)})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	view, err := s.app.GetSubscription(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.app.Subscribe(r.Context(), caller.UserID, req.PlanID, req.StripeSubscriptionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	view, err := s.app.CancelSubscription(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, "billing.subscription.cancel", "success", "user_id", caller.UserID)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	view, err := s.app.RefreshSubscription(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/webhooks/stripe is authenticated by the Stripe-Signature header.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, domain.Validationf("webhook payload too large"))
		return
	}
	ev, err := s.webhooks.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.audit(r, "billing.webhook.verify", "fail", "reason", domain.ErrorKind(err))
		writeError(w, r, err)
		return
	}
	outcome, err := s.app.HandleWebhook(r.Context(), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"received": ev.ID, "outcome": outcome})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	subs, err := s.app.ListSubscriptions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": subs, "count": len(subs)})
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req extendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID := r.PathValue("userId")
	view, err := s.app.ExtendSubscription(r.Context(), userID, req.Days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, "billing.admin.extend", "success", "admin_id", caller.UserID, "user_id", userID, "days", req.Days)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleFreeAccess(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	userID := r.PathValue("userId")
	view, err := s.app.GrantFreeAccess(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, "billing.admin.free_access", "success", "admin_id", caller.UserID, "user_id", userID)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.app.CreatePlan(r.Context(), app.PlanInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, "billing.admin.plan_create", "success", "admin_id", caller.UserID, "plan_id", plan.ID)
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.app.UpdatePlan(r.Context(), r.PathValue("id"), app.PlanInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, "billing.admin.plan_update", "success", "admin_id", caller.UserID, "plan_id", plan.ID)
	writeJSON(w, http.StatusOK, plan)
}
