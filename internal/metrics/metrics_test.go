package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	if m.MessagesSentTotal == nil {
		t.Error("MessagesSentTotal is nil")
	}
	if m.DispatchDurationSeconds == nil {
		t.Error("DispatchDurationSeconds is nil")
	}
	if m.TrackingEventsTotal == nil {
		t.Error("TrackingEventsTotal is nil")
	}
	if m.APIRequestsTotal == nil {
		t.Error("APIRequestsTotal is nil")
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
}

func TestMessageCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncMessagesSent("smtp")
	IncMessagesSent("smtp")
	IncMessagesSent("ses")
	IncMessagesFailed("smtp", "permanent")

	if got := testutil.ToFloat64(m.MessagesSentTotal.WithLabelValues("smtp")); got != 2 {
		t.Errorf("smtp sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesSentTotal.WithLabelValues("ses")); got != 1 {
		t.Errorf("ses sent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MessagesFailedTotal.WithLabelValues("smtp", "permanent")); got != 1 {
		t.Errorf("smtp failed = %v, want 1", got)
	}
}

func TestDispatchMetrics(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncDispatchInProgress()
	IncDispatchBatches()
	IncDispatchBatches()
	IncDispatchBatches()
	ObserveDispatchDuration(1.5)
	IncDispatch("completed")
	DecDispatchInProgress()

	if got := testutil.ToFloat64(m.DispatchBatchesTotal); got != 3 {
		t.Errorf("batches = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.DispatchInProgress); got != 0 {
		t.Errorf("in progress = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.DispatchTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.DispatchDurationSeconds); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestTrackingCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncTrackingEvents("opened")
	IncTrackingEvents("opened")
	IncTrackingEvents("clicked")
	IncTrackingErrors("opened")

	if got := testutil.ToFloat64(m.TrackingEventsTotal.WithLabelValues("opened")); got != 2 {
		t.Errorf("opened = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TrackingEventsTotal.WithLabelValues("clicked")); got != 1 {
		t.Errorf("clicked = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TrackingErrorsTotal.WithLabelValues("opened")); got != 1 {
		t.Errorf("opened errors = %v, want 1", got)
	}
}

func TestGlobalNilSafe(t *testing.T) {
	SetGlobal(nil)

	// None of these may panic without a registry
	IncMessagesSent("smtp")
	IncMessagesFailed("smtp", "temporary")
	IncDispatch("completed")
	IncDispatchBatches()
	ObserveDispatchDuration(1)
	IncDispatchInProgress()
	DecDispatchInProgress()
	IncTrackingEvents("opened")
	IncTrackingErrors("opened")
	IncSchedulerRuns("sent")
	IncAPIErrors("server_error")
}
