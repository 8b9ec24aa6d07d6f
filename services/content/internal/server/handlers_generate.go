package server

import (
	"errors"
	"net/http"
	"time"

	"personapost/pkg/domain"
	"personapost/services/content/internal/app"
)

type generatePostsRequest struct {
	Topic     string `json:"topic"`
	Industry  string `json:"industry"`
	Tone      string `json:"tone"`
	Platform  string `json:"platform"`
	Style     string `json:"style"`
	NoOfPosts int    `json:"noOfPosts"`
}

type personaRequest struct {
	Persona string `json:"persona"`
}

type generatePersonaRequest struct {
	Answers []domain.SurveyAnswer `json:"answers"`
}

func (s *Server) handleGeneratePosts(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req generatePostsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.app.GeneratePosts(r.Context(), caller, app.GeneratePostsInput{
		Topic:     req.Topic,
		Industry:  req.Industry,
		Tone:      req.Tone,
		Platform:  req.Platform,
		Style:     req.Style,
		NoOfPosts: req.NoOfPosts,
	})
	if err != nil {
		if errors.Is(err, domain.ErrParse) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"message": err.Error(),
				"error":   domain.ErrorKind(err),
				"raw":     res.Raw,
				"usage":   res.Usage,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTopics(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	topics, err := s.app.GetTopics(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) handleGenerateTopics(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	topics, err := s.app.GenerateTopics(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	p, err := s.app.GetPersona(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertPersona(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req personaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.app.UpsertPersona(r.Context(), caller, req.Persona)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGeneratePersona(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req generatePersonaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.app.GeneratePersona(r.Context(), caller, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// admin

type promptRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	prompts, err := s.app.ListPrompts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": prompts,
		"count": len(prompts),
	})
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.app.CreatePrompt(r.Context(), app.PromptInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, "content.admin.prompt.create", "success", "user_id", caller.UserID, "prompt_id", p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.app.UpdatePrompt(r.Context(), r.PathValue("id"), app.PromptInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, "content.admin.prompt.update", "success", "user_id", caller.UserID, "prompt_id", p.ID)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	id := r.PathValue("id")
	if err := s.app.DeletePrompt(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, "content.admin.prompt.delete", "success", "user_id", caller.UserID, "prompt_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /api/admin/usage?month=2024-11
func (s *Server) handleUsageReport(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	ref := time.Now().UTC()
	if v := r.URL.Query().Get("month"); v != "" {
		t, err := time.Parse("2006-01", v)
		if err != nil {
			writeError(w, r, domain.Validationf("invalid month %q (want YYYY-MM)", v))
			return
		}
		ref = t
	}
	report, err := s.app.UsageReport(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
