package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/foxzi/letterpress/internal/campaign"
	"github.com/foxzi/letterpress/internal/metrics"
	"github.com/foxzi/letterpress/internal/newsletter"
)

type fakeDueSender struct {
	calls   atomic.Int32
	results []campaign.DueResult
	err     error
	block   chan struct{}
}

func (f *fakeDueSender) SendDue(ctx context.Context) ([]campaign.DueResult, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.results, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceCountsOutcomes(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	defer metrics.SetGlobal(nil)

	f := &fakeDueSender{results: []campaign.DueResult{
		{NewsletterID: "a", Report: &newsletter.DispatchReport{Sent: 3}},
		{NewsletterID: "b", Err: newsletter.ErrNoRecipients},
		{NewsletterID: "c", Err: errors.New("disk full")},
	}}
	s := New(f, "", testLogger())
	s.RunOnce(context.Background())

	if got := testutil.ToFloat64(m.SchedulerRunsTotal.WithLabelValues("sent")); got != 1 {
		t.Errorf("sent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SchedulerRunsTotal.WithLabelValues("skipped")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SchedulerRunsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	f := &fakeDueSender{block: make(chan struct{})}
	s := New(f, "", testLogger())

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	s.RunOnce(context.Background())
	if got := f.calls.Load(); got != 1 {
		t.Errorf("SendDue called %d times, overlapping run should be skipped", got)
	}

	close(f.block)
	<-done
}

func TestStartInvalidSpec(t *testing.T) {
	s := New(&fakeDueSender{}, "every now and then", testLogger())
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestStartStop(t *testing.T) {
	f := &fakeDueSender{}
	s := New(f, "@every 1s", testLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduled job never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
}
