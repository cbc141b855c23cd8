package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Letterpress
type Metrics struct {
	// Transport counters
	MessagesSentTotal   *prometheus.CounterVec
	MessagesFailedTotal *prometheus.CounterVec

	// Dispatch
	DispatchTotal           *prometheus.CounterVec
	DispatchBatchesTotal    prometheus.Counter
	DispatchDurationSeconds prometheus.Histogram
	DispatchInProgress      prometheus.Gauge

	// Tracking
	TrackingEventsTotal *prometheus.CounterVec
	TrackingErrorsTotal *prometheus.CounterVec

	// Scheduler
	SchedulerRunsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letterpress_messages_sent_total",
				Help: "Total number of messages accepted by the mail transport",
			},
			[]string{"transport"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letterpress_messages_failed_total",
				Help: "Total number of messages the mail transport failed to send",
			},
			[]string{"transport", "error_type"},
		),

		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letterpress_dispatch_total",
				Help: "Total number of newsletter dispatches by outcome",
			},
			[]string{"outcome"},
		),
		DispatchBatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "letterpress_dispatch_batches_total",
				Help: "Total number of recipient batches processed",
			},
		),
		DispatchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "letterpress_dispatch_duration_seconds",
				Help:    "Duration of a whole newsletter dispatch in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		DispatchInProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "letterpress_dispatch_in_progress",
				Help: "Number of newsletter dispatches currently running",
			},
		),

		TrackingEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letterpress_tracking_events_total",
				Help: "Total number of recorded analytics events",
			},
			[]string{"event_type"},
		),
		TrackingErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letterpress_tracking_errors_total",
				Help: "Total number of analytics events that failed to persist",
			},
			[]string{"event_type"},
		),

		SchedulerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letterpress_scheduler_sends_total",
				Help: "Total number of scheduled newsletters picked up by the scheduler",
			},
			[]string{"result"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letterpress_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "letterpress_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letterpress_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.DispatchTotal,
		m.DispatchBatchesTotal,
		m.DispatchDurationSeconds,
		m.DispatchInProgress,
		m.TrackingEventsTotal,
		m.TrackingErrorsTotal,
		m.SchedulerRunsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncMessagesSent increments the sent message counter
func IncMessagesSent(transport string) {
	m := Global()
	if m != nil {
		m.MessagesSentTotal.WithLabelValues(transport).Inc()
	}
}

// IncMessagesFailed increments the failed message counter
func IncMessagesFailed(transport, errorType string) {
	m := Global()
	if m != nil {
		m.MessagesFailedTotal.WithLabelValues(transport, errorType).Inc()
	}
}

// IncDispatch counts a finished or rejected dispatch
func IncDispatch(outcome string) {
	m := Global()
	if m != nil {
		m.DispatchTotal.WithLabelValues(outcome).Inc()
	}
}

// IncDispatchBatches increments the processed batch counter
func IncDispatchBatches() {
	m := Global()
	if m != nil {
		m.DispatchBatchesTotal.Inc()
	}
}

// ObserveDispatchDuration records the duration of a dispatch in seconds
func ObserveDispatchDuration(seconds float64) {
	m := Global()
	if m != nil {
		m.DispatchDurationSeconds.Observe(seconds)
	}
}

// IncDispatchInProgress marks a dispatch as started
func IncDispatchInProgress() {
	m := Global()
	if m != nil {
		m.DispatchInProgress.Inc()
	}
}

// DecDispatchInProgress marks a dispatch as finished
func DecDispatchInProgress() {
	m := Global()
	if m != nil {
		m.DispatchInProgress.Dec()
	}
}

// IncTrackingEvents increments the recorded event counter
func IncTrackingEvents(eventType string) {
	m := Global()
	if m != nil {
		m.TrackingEventsTotal.WithLabelValues(eventType).Inc()
	}
}

// IncTrackingErrors increments the failed event counter
func IncTrackingErrors(eventType string) {
	m := Global()
	if m != nil {
		m.TrackingErrorsTotal.WithLabelValues(eventType).Inc()
	}
}

// IncSchedulerRuns counts a scheduled newsletter handled by the scheduler
func IncSchedulerRuns(result string) {
	m := Global()
	if m != nil {
		m.SchedulerRunsTotal.WithLabelValues(result).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
