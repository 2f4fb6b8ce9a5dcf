// Package metrics exposes Prometheus metrics for speech jobs and tablet
// analyses.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pillcast"

// Metrics holds the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	speechJobs     *prometheus.CounterVec
	speechActive   prometheus.Gauge
	analyses       *prometheus.CounterVec
	analysisTiming prometheus.Histogram
}

// New creates a registry with the pillcast collectors plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		speechJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_jobs_total",
			Help:      "Speech job state transitions.",
		}, []string{"state"}),
		speechActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speech_active_jobs",
			Help:      "Speech jobs currently running.",
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Tablet analyses by result.",
		}, []string{"result"}),
		analysisTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent waiting for the vision model.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	m.registry.MustRegister(
		m.speechJobs,
		m.speechActive,
		m.analyses,
		m.analysisTiming,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveJobState records a speech job entering state ("pending",
// "running", "stopped" or "done").
func (m *Metrics) ObserveJobState(state string) {
	if m == nil {
		return
	}
	m.speechJobs.WithLabelValues(state).Inc()
	switch state {
	case "running":
		m.speechActive.Inc()
	case "stopped", "done":
		m.speechActive.Dec()
	}
}

// ObserveAnalysis records one tablet analysis. result is "ok", "cached",
// "rejected" or "error".
func (m *Metrics) ObserveAnalysis(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(result).Inc()
	if result == "ok" {
		m.analysisTiming.Observe(took.Seconds())
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
