package server

import (
	"net/http"
	"strings"
	"time"

	"personapost/pkg/domain"
	"personapost/services/content/internal/app"
)

type createPostRequest struct {
	Topic        string     `json:"topic"`
	Industry     string     `json:"industry"`
	Tone         string     `json:"tone"`
	Platform     string     `json:"platform"`
	Content      string     `json:"content"`
	ScheduleDate *time.Time `json:"scheduleDate"`
}

type updatePostRequest struct {
	Topic        *string    `json:"topic"`
	Industry     *string    `json:"industry"`
	Tone         *string    `json:"tone"`
	Platform     *string    `json:"platform"`
	Content      *string    `json:"content"`
	ScheduleDate *time.Time `json:"scheduleDate"`
	IsCanceled   *bool      `json:"isCanceled"`
}

type scheduleRequest struct {
	ScheduleDate *time.Time `json:"scheduleDate"`
}

// postView adds the derived display flag to a post.
type postView struct {
	domain.Post
	State       domain.ScheduleState `json:"state"`
	Unscheduled bool                 `json:"unscheduled"`
}

func viewOf(p domain.Post) postView {
	return postView{Post: p, State: p.State(), Unscheduled: domain.IsUnscheduled(p)}
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	posts, err := s.app.ListPosts(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]postView, 0, len(posts))
	for _, p := range posts {
		items = append(items, viewOf(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req createPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	post, err := s.app.CreatePost(r.Context(), caller, app.CreatePostInput{
		Topic:        req.Topic,
		Industry:     req.Industry,
		Tone:         req.Tone,
		Platform:     req.Platform,
		Content:      req.Content,
		ScheduleDate: req.ScheduleDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(post))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	post, err := s.app.GetPost(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(post))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req updatePostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	post, err := s.app.UpdatePost(r.Context(), caller, r.PathValue("id"), app.PostUpdate{
		Content:      req.Content,
		Topic:        req.Topic,
		Industry:     req.Industry,
		Tone:         req.Tone,
		Platform:     req.Platform,
		ScheduleDate: req.ScheduleDate,
		IsCanceled:   req.IsCanceled,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(post))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if err := s.app.DeletePost(r.Context(), caller, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSchedulePost(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	date, ok := s.scheduleDate(w, r)
	if !ok {
		return
	}
	post, err := s.app.SchedulePost(r.Context(), caller, r.PathValue("id"), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(post))
}

func (s *Server) handleCancelPost(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	post, err := s.app.CancelPost(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(post))
}

func (s *Server) handleReschedulePost(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	date, ok := s.scheduleDate(w, r)
	if !ok {
		return
	}
	post, err := s.app.ReschedulePost(r.Context(), caller, r.PathValue("id"), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(post))
}

func (s *Server) scheduleDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return time.Time{}, false
	}
	if req.ScheduleDate == nil {
		writeError(w, r, domain.Validationf("scheduleDate required"))
		return time.Time{}, false
	}
	return *req.ScheduleDate, true
}

// GET /api/posts/calendar?from=2024-11-01&to=2024-11-30&tz=Europe/Berlin
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	q := r.URL.Query()
	loc := time.UTC
	if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, r, domain.Validationf("unknown time zone %q", tz))
			return
		}
		loc = l
	}
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, -1)
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = parseDay(v, loc); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = parseDay(v, loc); err != nil {
			writeError(w, r, err)
			return
		}
	}
	days, err := s.app.Calendar(r.Context(), caller, from, to, loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from": from.Format(time.DateOnly),
		"to":   to.Format(time.DateOnly),
		"tz":   loc.String(),
		"days": days,
	})
}

func parseDay(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, domain.Validationf("invalid date %q (want YYYY-MM-DD)", v)
}
