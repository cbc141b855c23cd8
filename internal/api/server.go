package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/foxzi/letterpress/internal/analytics"
	"github.com/foxzi/letterpress/internal/campaign"
	"github.com/foxzi/letterpress/internal/config"
	"github.com/foxzi/letterpress/internal/metrics"
)

// Version is reported by the health endpoint; set by the binary at startup
var Version = "dev"

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	campaign   *campaign.Service
	analytics  *analytics.Recorder
	config     *config.APIConfig
	tracking   config.TrackingConfig
	validate   *validator.Validate
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(svc *campaign.Service, rec *analytics.Recorder, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		campaign:  svc,
		analytics: rec,
		config:    &cfg.API,
		tracking:  cfg.Tracking,
		validate:  validator.New(),
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Public routes
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/subscribe", s.handleSubscribe)
	s.router.Get("/unsubscribe", s.handleUnsubscribeLink)
	s.router.Post("/unsubscribe", s.handleUnsubscribe)
	s.router.Get("/track/open/{newsletterID}/{recipientID}", s.handleTrackOpen)
	s.router.Get("/track/click/{newsletterID}/{recipientID}", s.handleTrackClick)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/newsletters", s.handleListNewsletters)
		r.Post("/newsletters", s.handleCreateNewsletter)
		r.Get("/newsletters/{id}", s.handleGetNewsletter)
		r.Post("/newsletters/{id}/send", s.handleSendNewsletter)
		r.Post("/newsletters/{id}/test", s.handleTestSend)
		r.Get("/newsletters/{id}/analytics", s.handleNewsletterAnalytics)

		r.Get("/dashboard", s.handleDashboard)

		r.Get("/subscribers", s.handleListSubscribers)
		r.Post("/subscribers", s.handleSubscribe)
		r.Get("/subscribers/{id}", s.handleGetSubscriber)
		r.Delete("/subscribers/{id}", s.handleDeleteSubscriber)
		r.Get("/subscribers/{id}/engagement", s.handleEngagement)
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
