package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/letterpress/internal/newsletter"
	"github.com/foxzi/letterpress/internal/tracking"
)

// handleTrackOpen handles GET /track/open/{newsletterID}/{recipientID}.
// The pixel is served whether or not the event could be recorded.
func (s *Server) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	s.recordTracking(r, newsletter.EventOpened, &newsletter.EventData{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	})
	tracking.ServePixel(w)
}

// handleTrackClick handles GET /track/click/{newsletterID}/{recipientID}?url=.
// It always redirects; missing or unsafe targets go to the fallback URL.
func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	target := tracking.SafeRedirect(r.URL.Query().Get("url"), s.tracking.FallbackURL)

	s.recordTracking(r, newsletter.EventClicked, &newsletter.EventData{
		UserAgent:  r.UserAgent(),
		IPAddress:  clientIP(r),
		ClickedURL: target,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// recordTracking persists a tracking event; failures are logged and swallowed
func (s *Server) recordTracking(r *http.Request, eventType newsletter.EventType, data *newsletter.EventData) {
	newsletterID := chi.URLParam(r, "newsletterID")
	recipientID := chi.URLParam(r, "recipientID")

	_, err := s.analytics.RecordEvent(r.Context(), recipientID, newsletterID, eventType, data)
	switch {
	case err == nil:
	case errors.Is(err, newsletter.ErrNotFound):
		s.logger.Debug("tracking event for unknown newsletter ignored",
			"newsletter_id", newsletterID,
			"event_type", eventType,
		)
	default:
		s.logger.Warn("failed to record tracking event",
			"newsletter_id", newsletterID,
			"recipient_id", recipientID,
			"event_type", eventType,
			"error", err,
		)
	}
}
