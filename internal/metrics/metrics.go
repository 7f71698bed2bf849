// Package metrics provides Prometheus metrics for autonote.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autonote"

// Metrics holds the collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	// TaskRuns counts finished task runs.
	TaskRuns *prometheus.CounterVec
	// TaskDuration measures task run duration.
	TaskDuration *prometheus.HistogramVec
	// RateLimitWait observes how long callers waited for a limiter slot.
	RateLimitWait *prometheus.HistogramVec
	// Publications counts publication attempts by outcome.
	Publications *prometheus.CounterVec
}

// New registers the collectors plus the Go and process collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TaskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Total number of task runs",
			},
			[]string{"task", "status"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task runs in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"task"},
		),
		RateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ratelimit_wait_seconds",
				Help:      "Time spent waiting for a rate limiter admission",
				Buckets:   []float64{0, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
			},
			[]string{"limiter"},
		),
		Publications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publications_total",
				Help:      "Total number of publication attempts",
			},
			[]string{"result"},
		),
	}
}

// RecordTask records a finished task run.
func (m *Metrics) RecordTask(task, status string, d time.Duration) {
	m.TaskRuns.WithLabelValues(task, status).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// RecordPublication records a publication outcome.
func (m *Metrics) RecordPublication(result string) {
	m.Publications.WithLabelValues(result).Inc()
}

// WaitObserver returns a callback for ratelimit.WithWaitObserver.
func (m *Metrics) WaitObserver(limiter string) func(time.Duration) {
	h := m.RateLimitWait.WithLabelValues(limiter)
	return func(d time.Duration) { h.Observe(d.Seconds()) }
}

// WindowReporter is a limiter that can report its current occupancy.
type WindowReporter interface {
	InWindow() int
	Ceiling() int
}

// RegisterLimiter exports a limiter's occupancy and ceiling, read at scrape time.
func (m *Metrics) RegisterLimiter(name string, l WindowReporter) {
	labels := prometheus.Labels{"limiter": name}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "ratelimit_in_window",
			Help:        "Admissions counting against the limiter ceiling in the current window",
			ConstLabels: labels,
		}, func() float64 { return float64(l.InWindow()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "ratelimit_ceiling",
			Help:        "Maximum admissions per window",
			ConstLabels: labels,
		}, func() float64 { return float64(l.Ceiling()) }),
	)
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
