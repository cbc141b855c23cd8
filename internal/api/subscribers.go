package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/letterpress/internal/newsletter"
)

const defaultEngagementDays = 30

// SubscribeRequest is the request body for POST /subscribe and POST /api/v1/subscribers
type SubscribeRequest struct {
	Email            string `json:"email" validate:"required,email"`
	Name             string `json:"name" validate:"max=200"`
	SubscriptionType string `json:"subscription_type" validate:"omitempty,oneof=free paid"`
}

// UnsubscribeRequest is the request body for POST /unsubscribe
type UnsubscribeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SubscriberListResponse is the response for GET /api/v1/subscribers
type SubscriberListResponse struct {
	Subscribers []*newsletter.Subscriber `json:"subscribers"`
	Limit       int                      `json:"limit"`
	Offset      int                      `json:"offset"`
}

const unsubscribedPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 40px;">
<p>You have been unsubscribed and will no longer receive these emails.</p>
</body></html>
`

// handleSubscribe handles POST /subscribe and POST /api/v1/subscribers
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	sub, err := s.campaign.Subscribe(r.Context(), req.Email, req.Name, newsletter.Audience(req.SubscriptionType))
	if err != nil {
		s.sendServiceError(w, err, "subscribe")
		return
	}
	s.sendJSON(w, http.StatusCreated, sub)
}

// handleUnsubscribeLink handles GET /unsubscribe?email=, the target of the
// footer link. It answers the same page whether or not the address is known.
func (s *Server) handleUnsubscribeLink(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}

	if _, err := s.campaign.Unsubscribe(r.Context(), email); err != nil && !errors.Is(err, newsletter.ErrNotFound) {
		s.sendServiceError(w, err, "unsubscribe")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(unsubscribedPage))
}

// handleUnsubscribe handles POST /unsubscribe
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	sub, err := s.campaign.Unsubscribe(r.Context(), req.Email)
	if err != nil {
		s.sendServiceError(w, err, "unsubscribe")
		return
	}
	s.sendJSON(w, http.StatusOK, sub)
}

// handleListSubscribers handles GET /api/v1/subscribers
func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := newsletter.SubscriberFilter{
		Audience:   newsletter.Audience(q.Get("audience")),
		ActiveOnly: q.Get("active") == "true",
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}

	subs, err := s.campaign.ListSubscribers(r.Context(), filter)
	if err != nil {
		s.sendServiceError(w, err, "list subscribers")
		return
	}
	if subs == nil {
		subs = []*newsletter.Subscriber{}
	}

	s.sendJSON(w, http.StatusOK, SubscriberListResponse{
		Subscribers: subs,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// handleGetSubscriber handles GET /api/v1/subscribers/{id}
func (s *Server) handleGetSubscriber(w http.ResponseWriter, r *http.Request) {
	sub, err := s.campaign.GetSubscriber(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "get subscriber")
		return
	}
	s.sendJSON(w, http.StatusOK, sub)
}

// handleDeleteSubscriber handles DELETE /api/v1/subscribers/{id}
func (s *Server) handleDeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := s.campaign.RemoveSubscriber(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendServiceError(w, err, "delete subscriber")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEngagement handles GET /api/v1/subscribers/{id}/engagement
func (s *Server) handleEngagement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.campaign.GetSubscriber(r.Context(), id); err != nil {
		s.sendServiceError(w, err, "load engagement")
		return
	}

	e, err := s.analytics.Engagement(r.Context(), id, queryInt(r, "days", defaultEngagementDays))
	if err != nil {
		s.sendServiceError(w, err, "load engagement")
		return
	}
	s.sendJSON(w, http.StatusOK, e)
}
