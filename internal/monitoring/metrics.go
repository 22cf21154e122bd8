package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/civicnet/weeklymatch/internal/telemetry"
)

const namespace = "weeklymatch"

// Cycle outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Meeting outcomes
const (
	MeetingCreated  = "created"
	MeetingFailed   = "failed"
	MeetingDisabled = "disabled"
)

// CycleMetrics records matching-cycle activity to a Prometheus registry and to the
// global OpenTelemetry meter provider. A nil *CycleMetrics records nothing.
type CycleMetrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	matches         prometheus.Counter
	notifications   *prometheus.CounterVec
	scores          prometheus.Histogram
	meetings        *prometheus.CounterVec
	historyFailures prometheus.Counter
	lastRun         prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	cycleDuration metric.Float64Histogram
	pairsSent     metric.Int64Counter
}

// NewCycleMetrics creates the collectors on a fresh registry that also carries the Go and process collectors
func NewCycleMetrics() (*CycleMetrics, error) {
	m := &CycleMetrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Matching cycles by outcome",
		}, []string{"outcome"}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Pairs selected for dispatch",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Match notifications by delivery status",
		}, []string{"status"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compatibility_score",
			Help:      "Distribution of selected pair scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		meetings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meetings_total",
			Help:      "Meeting provisioning attempts by status",
		}, []string{"status"}),
		historyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_failures_total",
			Help:      "Pairs whose match history write failed after notification",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle finished",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class",
		}, []string{"method", "route", "status_class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles, m.matches, m.notifications, m.scores, m.meetings, m.historyFailures, m.lastRun,
		m.httpRequests, m.httpDuration,
	)

	meter := otel.Meter(telemetry.InstrumentationName)
	var err error
	m.cycleDuration, err = meter.Float64Histogram(
		"weeklymatch.cycle.duration",
		metric.WithDescription("Duration of a matching cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle duration histogram: %w", err)
	}
	m.pairsSent, err = meter.Int64Counter(
		"weeklymatch.pairs.dispatched",
		metric.WithDescription("Pairs handed to the dispatcher"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pairs counter: %w", err)
	}

	return m, nil
}

// Registry exposes the underlying registry, mainly for tests
func (m *CycleMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCycle counts a finished cycle and its wall time
func (m *CycleMetrics) RecordCycle(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.lastRun.SetToCurrentTime()
	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordMatch counts one selected pair and its score
func (m *CycleMetrics) RecordMatch(ctx context.Context, score float64) {
	if m == nil {
		return
	}
	m.matches.Inc()
	m.scores.Observe(score)
	m.pairsSent.Add(ctx, 1)
}

// RecordNotification counts one notification attempt
func (m *CycleMetrics) RecordNotification(success bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !success {
		status = "failed"
	}
	m.notifications.WithLabelValues(status).Inc()
}

// RecordMeeting counts one provisioning outcome
func (m *CycleMetrics) RecordMeeting(status string) {
	if m == nil {
		return
	}
	m.meetings.WithLabelValues(status).Inc()
}

// RecordHistoryFailure counts a pair whose history write failed
func (m *CycleMetrics) RecordHistoryFailure() {
	if m == nil {
		return
	}
	m.historyFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *CycleMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MetricsHandler returns a Gin handler for the /metrics endpoint
func (m *CycleMetrics) MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
