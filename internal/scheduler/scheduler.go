// Package scheduler sends scheduled newsletters when they become due.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/foxzi/letterpress/internal/campaign"
	"github.com/foxzi/letterpress/internal/metrics"
	"github.com/foxzi/letterpress/internal/newsletter"
)

// DefaultSpec checks for due newsletters once a minute
const DefaultSpec = "@every 1m"

// DueSender sends every due newsletter
type DueSender interface {
	SendDue(ctx context.Context) ([]campaign.DueResult, error)
}

// Scheduler runs DueSender on a cron schedule
type Scheduler struct {
	sender DueSender
	spec   string
	logger *slog.Logger

	cron *cron.Cron
	ctx  context.Context
	mu   sync.Mutex // serializes runs
}

// New creates a new Scheduler
func New(sender DueSender, spec string, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{
		sender: sender,
		spec:   spec,
		logger: logger.With("component", "scheduler"),
	}
}

// Start registers the job and starts the cron runner
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(s.ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}

	s.logger.Info("starting scheduler", "spec", s.spec)
	s.cron.Start()
	return nil
}

// Stop stops the cron runner and waits for a running job to finish
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunOnce sends all due newsletters. Overlapping runs are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.mu.TryLock() {
		s.logger.Debug("previous run still in progress, skipping")
		return
	}
	defer s.mu.Unlock()

	results, err := s.sender.SendDue(ctx)
	if err != nil {
		metrics.IncSchedulerRuns("error")
		s.logger.Error("failed to load scheduled newsletters", "error", err)
		return
	}

	for _, r := range results {
		logger := s.logger.With("newsletter_id", r.NewsletterID)
		switch {
		case r.Err == nil:
			metrics.IncSchedulerRuns("sent")
			logger.Info("scheduled newsletter sent", "sent", r.Report.Sent, "failed", r.Report.Failed)
		case newsletter.IsValidation(r.Err):
			metrics.IncSchedulerRuns("skipped")
			logger.Warn("scheduled newsletter skipped", "reason", r.Err)
		default:
			metrics.IncSchedulerRuns("error")
			logger.Error("scheduled newsletter failed", "error", r.Err)
		}
	}
}
