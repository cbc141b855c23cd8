package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/letterpress/internal/campaign"
	"github.com/foxzi/letterpress/internal/newsletter"
)

const defaultDashboardDays = 30

// CreateNewsletterRequest is the request body for POST /api/v1/newsletters
type CreateNewsletterRequest struct {
	Title          string     `json:"title" validate:"required,max=200"`
	Content        string     `json:"content"`
	HTMLContent    string     `json:"html_content"`
	TargetAudience string     `json:"target_audience" validate:"omitempty,oneof=all free paid"`
	Tags           []string   `json:"tags"`
	ScheduledFor   *time.Time `json:"scheduled_for"`
}

// TestSendRequest is the request body for POST /api/v1/newsletters/{id}/test
type TestSendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// NewsletterListResponse is the response for GET /api/v1/newsletters
type NewsletterListResponse struct {
	Newsletters []*newsletter.Newsletter `json:"newsletters"`
	Limit       int                      `json:"limit"`
	Offset      int                      `json:"offset"`
}

// handleListNewsletters handles GET /api/v1/newsletters
func (s *Server) handleListNewsletters(w http.ResponseWriter, r *http.Request) {
	filter := newsletter.ListFilter{
		Status: newsletter.Status(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}

	list, err := s.campaign.ListNewsletters(r.Context(), filter)
	if err != nil {
		s.sendServiceError(w, err, "list newsletters")
		return
	}
	if list == nil {
		list = []*newsletter.Newsletter{}
	}

	s.sendJSON(w, http.StatusOK, NewsletterListResponse{
		Newsletters: list,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// handleCreateNewsletter handles POST /api/v1/newsletters
func (s *Server) handleCreateNewsletter(w http.ResponseWriter, r *http.Request) {
	var req CreateNewsletterRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	n, err := s.campaign.CreateNewsletter(r.Context(), campaign.NewsletterInput{
		Title:          req.Title,
		Content:        req.Content,
		HTMLContent:    req.HTMLContent,
		TargetAudience: newsletter.Audience(req.TargetAudience),
		Tags:           req.Tags,
		ScheduledFor:   req.ScheduledFor,
	})
	if err != nil {
		s.sendServiceError(w, err, "create newsletter")
		return
	}

	s.sendJSON(w, http.StatusCreated, n)
}

// handleGetNewsletter handles GET /api/v1/newsletters/{id}
func (s *Server) handleGetNewsletter(w http.ResponseWriter, r *http.Request) {
	n, err := s.campaign.GetNewsletter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "get newsletter")
		return
	}
	s.sendJSON(w, http.StatusOK, n)
}

// handleSendNewsletter handles POST /api/v1/newsletters/{id}/send.
// The dispatch runs to completion before the response is written, so the
// server write timeout is lifted for this request.
func (s *Server) handleSendNewsletter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Warn("cannot clear write deadline for dispatch", "newsletter_id", id, "error", err)
	}

	report, err := s.campaign.Send(r.Context(), id)
	if err != nil {
		s.sendServiceError(w, err, "send newsletter")
		return
	}

	s.logger.Info("newsletter sent via API",
		"newsletter_id", id,
		"sent", report.Sent,
		"failed", report.Failed,
	)
	s.sendJSON(w, http.StatusOK, report)
}

// handleTestSend handles POST /api/v1/newsletters/{id}/test
func (s *Server) handleTestSend(w http.ResponseWriter, r *http.Request) {
	var req TestSendRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	if err := s.campaign.SendTest(r.Context(), chi.URLParam(r, "id"), req.Email); err != nil {
		s.sendServiceError(w, err, "send test newsletter")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleNewsletterAnalytics handles GET /api/v1/newsletters/{id}/analytics
func (s *Server) handleNewsletterAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.analytics.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "load analytics")
		return
	}
	s.sendJSON(w, http.StatusOK, summary)
}

// handleDashboard handles GET /api/v1/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.analytics.Dashboard(r.Context(), queryInt(r, "days", defaultDashboardDays))
	if err != nil {
		s.sendServiceError(w, err, "load dashboard")
		return
	}
	s.sendJSON(w, http.StatusOK, d)
}
