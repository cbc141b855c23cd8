// Package analytics records per-recipient events and derives newsletter statistics.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/letterpress/internal/metrics"
	"github.com/foxzi/letterpress/internal/newsletter"
	"github.com/foxzi/letterpress/internal/store"
)

// Recorder persists analytics events and answers analytics queries
type Recorder struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a new Recorder
func NewRecorder(s store.Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  s,
		logger: logger.With("component", "analytics"),
		now:    time.Now,
	}
}

// RecordEvent appends an event and increments the newsletter counter for its type.
// data may be nil; its timestamp is always set to the recording time.
func (r *Recorder) RecordEvent(ctx context.Context, recipientID, newsletterID string, eventType newsletter.EventType, data *newsletter.EventData) (*newsletter.Event, error) {
	if !eventType.Valid() {
		metrics.IncTrackingErrors(string(eventType))
		return nil, fmt.Errorf("%w: %q", newsletter.ErrInvalidEventType, eventType)
	}

	now := r.now().UTC()
	ev := &newsletter.Event{
		ID:           uuid.New().String(),
		RecipientID:  recipientID,
		NewsletterID: newsletterID,
		Type:         eventType,
		CreatedAt:    now,
	}
	if data != nil {
		ev.Data = *data
	}
	ev.Data.Timestamp = now

	if err := r.store.RecordEvent(ctx, ev); err != nil {
		metrics.IncTrackingErrors(string(eventType))
		return nil, fmt.Errorf("failed to record %s event: %w", eventType, err)
	}

	metrics.IncTrackingEvents(string(eventType))
	r.logger.Debug("event recorded",
		"newsletter_id", newsletterID,
		"recipient_id", recipientID,
		"event_type", eventType,
	)

	return ev, nil
}

// Stats holds per-type event counts. Every known type is present.
type Stats map[newsletter.EventType]int64

func newStats() Stats {
	s := make(Stats, len(newsletter.EventTypes))
	for _, t := range newsletter.EventTypes {
		s[t] = 0
	}
	return s
}

func countEvents(events []*newsletter.Event) Stats {
	s := newStats()
	for _, ev := range events {
		s[ev.Type]++
	}
	return s
}

// StatsFor counts the events recorded for a newsletter
func (r *Recorder) StatsFor(ctx context.Context, newsletterID string) (Stats, error) {
	events, err := r.store.ListEvents(ctx, newsletter.EventFilter{NewsletterID: newsletterID})
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return countEvents(events), nil
}

// Rates are engagement ratios in the range [0, 1]
type Rates struct {
	OpenRate  float64 `json:"open_rate"`
	ClickRate float64 `json:"click_rate"`
}

// ComputeRates derives rates from event counts and the number of recipients
// the newsletter was sent to. A zero denominator yields a zero rate.
func ComputeRates(stats Stats, sentToCount int) Rates {
	var rates Rates
	if sentToCount > 0 {
		rates.OpenRate = float64(stats[newsletter.EventOpened]) / float64(sentToCount)
	}
	if opened := stats[newsletter.EventOpened]; opened > 0 {
		rates.ClickRate = float64(stats[newsletter.EventClicked]) / float64(opened)
	}
	return rates
}

// SummaryHeader identifies the newsletter a summary is about
type SummaryHeader struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status string     `json:"status"`
	SentAt *time.Time `json:"sent_at,omitempty"`
	SentTo int        `json:"sent_to"`
}

// Summary is the analytics view of one newsletter
type Summary struct {
	Newsletter SummaryHeader       `json:"newsletter"`
	Stats      Stats               `json:"stats"`
	Counters   newsletter.Counters `json:"counters"`
	Rates      Rates               `json:"rates"`
	Timeline   []DayCount          `json:"timeline"`
}

// Summary returns stats, rates and a daily timeline for a newsletter
func (r *Recorder) Summary(ctx context.Context, newsletterID string) (*Summary, error) {
	n, err := r.store.GetNewsletter(ctx, newsletterID)
	if err != nil {
		return nil, err
	}

	events, err := r.store.ListEvents(ctx, newsletter.EventFilter{NewsletterID: newsletterID})
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	stats := countEvents(events)
	return &Summary{
		Newsletter: SummaryHeader{
			ID:     n.ID,
			Title:  n.Title,
			Status: string(n.Status),
			SentAt: n.SentAt,
			SentTo: n.SentToCount,
		},
		Stats:    stats,
		Counters: n.Counters,
		Rates:    ComputeRates(stats, n.SentToCount),
		Timeline: Timeline(events),
	}, nil
}
