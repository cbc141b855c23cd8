package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/letterpress/internal/analytics"
	"github.com/foxzi/letterpress/internal/api"
	"github.com/foxzi/letterpress/internal/campaign"
	"github.com/foxzi/letterpress/internal/config"
	"github.com/foxzi/letterpress/internal/dispatch"
	"github.com/foxzi/letterpress/internal/metrics"
	"github.com/foxzi/letterpress/internal/personalize"
	"github.com/foxzi/letterpress/internal/scheduler"
	"github.com/foxzi/letterpress/internal/store"
	"github.com/foxzi/letterpress/internal/tracking"
	"github.com/foxzi/letterpress/internal/transport"
)

// Core holds the components shared by the server and the CLI
type Core struct {
	Store     store.Store
	Transport *transport.Transport
	Analytics *analytics.Recorder
	Campaign  *campaign.Service
	Logger    *slog.Logger
}

// NewCore opens storage and builds the send pipeline. The transport is
// constructed once here and handed to the dispatcher.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	s, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	t := transport.New(ctx, cfg.Transport, logger)
	recorder := analytics.NewRecorder(s, logger)
	personalizer := personalize.New(cfg.Server.BaseURL)

	dispatcher := dispatch.New(
		t,
		recorder,
		s,
		personalizer,
		tracking.NewInjector(cfg.Tracking.BaseURL),
		dispatch.Options{
			BatchSize:    cfg.Dispatch.BatchSize,
			BatchDelay:   cfg.Dispatch.Delay(),
			RewriteLinks: cfg.Tracking.RewriteLinks,
		},
		logger,
	)

	return &Core{
		Store:     s,
		Transport: t,
		Analytics: recorder,
		Campaign:  campaign.NewService(s, dispatcher, t, personalizer, logger),
		Logger:    logger,
	}, nil
}

// Close releases storage
func (c *Core) Close() error {
	return c.Store.Close()
}

// App is the main application
type App struct {
	config        *config.Config
	core          *Core
	apiServer     *api.Server
	metricsServer *metrics.Server
	scheduler     *scheduler.Scheduler
	logger        *slog.Logger
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging, os.Stdout)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		metricsServer = metrics.NewServer(m, metrics.ServerOptions{
			Addr:       cfg.Metrics.ListenAddr,
			Path:       cfg.Metrics.Path,
			AllowedIPs: cfg.Metrics.AllowedIPs,
		}, logger)
	}

	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(core.Campaign, cfg.Scheduler.Spec, logger)
	}

	return &App{
		config:        cfg,
		core:          core,
		apiServer:     api.NewServer(core.Campaign, core.Analytics, cfg, logger),
		metricsServer: metricsServer,
		scheduler:     sched,
		logger:        logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting letterpress",
		"api_addr", a.config.API.ListenAddr,
		"base_url", a.config.Server.BaseURL,
		"storage", a.config.Storage.Type,
		"transport", a.core.Transport.Name(),
		"batch_size", a.config.Dispatch.BatchSize,
		"batch_delay", a.config.Dispatch.Delay(),
	)
	if !a.config.API.AuthEnabled() {
		a.logger.Warn("API authentication disabled, set api.api_key or api.api_key_hash")
	}

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop the scheduler first so no new dispatch starts
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.core.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// NewLogger creates a logger for command-line tools
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	return setupLogger(cfg, w)
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
