// Package metrics exposes Prometheus collectors for workflow execution.
// All methods are safe on a nil *Metrics, which disables collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "promoflow"

type Metrics struct {
	registry *prometheus.Registry

	workflowsStarted     prometheus.Counter
	workflowsFinished    *prometheus.CounterVec
	workflowsRunning     prometheus.Gauge
	stageDuration        *prometheus.HistogramVec
	stageFailures        *prometheus.CounterVec
	fallbacks            *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
}

// New registers every collector on a dedicated registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		workflowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_started_total",
			Help:      "Workflows started.",
		}),
		workflowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_finished_total",
			Help:      "Workflows finished, by final status.",
		}, []string{"status"}),
		workflowsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_running",
			Help:      "Workflows currently executing.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures.",
		}, []string{"stage"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fallback paths taken, by kind.",
		}, []string{"kind"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Best-effort notifications that could not be delivered.",
		}, []string{"event_type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.workflowsStarted,
		m.workflowsFinished,
		m.workflowsRunning,
		m.stageDuration,
		m.stageFailures,
		m.fallbacks,
		m.notificationFailures,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) WorkflowStarted() {
	if m == nil {
		return
	}

	m.workflowsStarted.Inc()
	m.workflowsRunning.Inc()
}

func (m *Metrics) WorkflowFinished(status string) {
	if m == nil {
		return
	}

	m.workflowsFinished.WithLabelValues(status).Inc()
	m.workflowsRunning.Dec()
}

// ObserveStage records a stage duration and counts it as failed when err is set.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())

	if err != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) Fallback(kind string) {
	if m == nil {
		return
	}

	m.fallbacks.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationFailed(eventType string) {
	if m == nil {
		return
	}

	m.notificationFailures.WithLabelValues(eventType).Inc()
}
