// Package dispatch sends a newsletter to its recipients in throttled batches.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/letterpress/internal/metrics"
	"github.com/foxzi/letterpress/internal/newsletter"
	"github.com/foxzi/letterpress/internal/personalize"
	"github.com/foxzi/letterpress/internal/tracking"
	"github.com/foxzi/letterpress/internal/transport"
)

// Defaults
const (
	DefaultBatchSize  = 50
	DefaultBatchDelay = time.Second
)

// Sender delivers one message
type Sender interface {
	Send(ctx context.Context, to, subject, html string) transport.Result
}

// EventRecorder persists analytics events
type EventRecorder interface {
	RecordEvent(ctx context.Context, recipientID, newsletterID string, eventType newsletter.EventType, data *newsletter.EventData) (*newsletter.Event, error)
}

// SentMarker persists the terminal sent state of a newsletter
type SentMarker interface {
	MarkSent(ctx context.Context, id string, sentAt time.Time, sentTo []string) (*newsletter.Newsletter, error)
}

// Options configures a Dispatcher
type Options struct {
	BatchSize    int
	BatchDelay   time.Duration
	RewriteLinks bool
}

// Dispatcher drives personalized sends for a newsletter
type Dispatcher struct {
	sender       Sender
	recorder     EventRecorder
	newsletters  SentMarker
	personalizer *personalize.Personalizer
	injector     *tracking.Injector
	opts         Options
	logger       *slog.Logger

	sleep func(time.Duration)
	now   func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a new Dispatcher
func New(
	sender Sender,
	recorder EventRecorder,
	newsletters SentMarker,
	personalizer *personalize.Personalizer,
	injector *tracking.Injector,
	opts Options,
	logger *slog.Logger,
) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}

	return &Dispatcher{
		sender:       sender,
		recorder:     recorder,
		newsletters:  newsletters,
		personalizer: personalizer,
		injector:     injector,
		opts:         opts,
		logger:       logger.With("component", "dispatch"),
		sleep:        time.Sleep,
		now:          time.Now,
		inflight:     make(map[string]struct{}),
	}
}

// Partition splits recipients into ordered batches of at most size elements
func Partition(recipients []newsletter.Recipient, size int) [][]newsletter.Recipient {
	if size <= 0 {
		size = DefaultBatchSize
	}

	batches := make([][]newsletter.Recipient, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := min(start+size, len(recipients))
		batches = append(batches, recipients[start:end])
	}
	return batches
}

// outcome is the result of one recipient's send
type outcome struct {
	ok     bool
	reason string
}

// Dispatch sends n to every recipient and marks it sent.
//
// Recipients are sent to in batches of Options.BatchSize. Sends within a batch
// run concurrently and batches run one after another with Options.BatchDelay
// between them. A failing recipient is recorded in the report and never stops
// the run. Once started, a dispatch runs to completion even if ctx is
// cancelled. On success n is updated to the stored sent state.
func (d *Dispatcher) Dispatch(ctx context.Context, n *newsletter.Newsletter, recipients []newsletter.Recipient) (*newsletter.DispatchReport, error) {
	if n.IsSent() {
		metrics.IncDispatch("rejected")
		return nil, newsletter.ErrAlreadySent
	}
	if len(recipients) == 0 {
		metrics.IncDispatch("rejected")
		return nil, newsletter.ErrNoRecipients
	}
	if !d.acquire(n.ID) {
		metrics.IncDispatch("rejected")
		return nil, newsletter.ErrDispatchInProgress
	}
	defer d.release(n.ID)

	ctx = context.WithoutCancel(ctx)
	start := d.now()
	metrics.IncDispatchInProgress()
	defer metrics.DecDispatchInProgress()

	batches := Partition(recipients, d.opts.BatchSize)
	report := &newsletter.DispatchReport{
		NewsletterID: n.ID,
		Batches:      len(batches),
		Errors:       []newsletter.SendFailure{},
	}
	sentTo := make([]string, 0, len(recipients))

	logger := d.logger.With("newsletter_id", n.ID)
	logger.Info("dispatch started",
		"recipients", len(recipients),
		"batches", len(batches),
		"batch_size", d.opts.BatchSize,
	)

	for i, batch := range batches {
		logger.Debug("sending batch", "batch", i+1, "size", len(batch))

		results := make([]outcome, len(batch))
		var g errgroup.Group
		for j, r := range batch {
			g.Go(func() error {
				results[j] = d.sendOne(ctx, n, r)
				return nil
			})
		}
		g.Wait()

		for j, r := range batch {
			if results[j].ok {
				report.Sent++
				sentTo = append(sentTo, r.Email)
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors, newsletter.SendFailure{
				Email:  r.Email,
				Reason: results[j].reason,
			})
		}
		metrics.IncDispatchBatches()

		if i < len(batches)-1 && d.opts.BatchDelay > 0 {
			d.sleep(d.opts.BatchDelay)
		}
	}

	updated, err := d.newsletters.MarkSent(ctx, n.ID, d.now().UTC(), sentTo)
	if err != nil {
		metrics.IncDispatch("error")
		return report, fmt.Errorf("failed to mark newsletter sent: %w", err)
	}
	*n = *updated

	metrics.IncDispatch("completed")
	metrics.ObserveDispatchDuration(d.now().Sub(start).Seconds())
	logger.Info("dispatch completed",
		"sent", report.Sent,
		"failed", report.Failed,
		"duration", d.now().Sub(start),
	)

	return report, nil
}

// sendOne renders and sends the newsletter for one recipient. A panic in
// rendering or sending is converted into a failed outcome.
func (d *Dispatcher) sendOne(ctx context.Context, n *newsletter.Newsletter, r newsletter.Recipient) (out outcome) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("panic while sending", "newsletter_id", n.ID, "email", r.Email, "panic", p)
			out = outcome{reason: fmt.Sprintf("panic: %v", p)}
		}
	}()

	html := d.personalizer.Personalize(n.HTMLContent, r)
	if d.opts.RewriteLinks {
		html = d.injector.RewriteLinks(html, n.ID, r.ID)
	}
	html = d.injector.Inject(html, n.ID, r.ID)

	res := d.sender.Send(ctx, r.Email, n.Title, html)
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "send failed"
		}
		d.logger.Warn("failed to send newsletter",
			"newsletter_id", n.ID,
			"email", r.Email,
			"error", reason,
		)
		return outcome{reason: reason}
	}

	if _, err := d.recorder.RecordEvent(ctx, r.ID, n.ID, newsletter.EventSent, nil); err != nil {
		d.logger.Warn("failed to record sent event",
			"newsletter_id", n.ID,
			"recipient_id", r.ID,
			"error", err,
		)
	}

	return outcome{ok: true}
}

func (d *Dispatcher) acquire(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
}
