// Package metrics exposes monitoring counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loginwatch/internal/model"
)

// Metrics holds the collectors updated by the scheduler. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	fetchSeconds    *prometheus.HistogramVec
	storageFailures *prometheus.CounterVec
	skippedRules    *prometheus.GaugeVec
	failureStreak   *prometheus.GaugeVec
	lastCapture     *prometheus.GaugeVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginwatch_cycles_total",
				Help: "Monitoring cycles by target and classification",
			},
			[]string{"target", "classification"},
		),
		fetchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loginwatch_fetch_duration_seconds",
				Help:    "Time spent fetching a page",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		storageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginwatch_storage_failures_total",
				Help: "Cycles aborted because a capture could not be read or written",
			},
			[]string{"target"},
		),
		skippedRules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "loginwatch_skipped_rules",
				Help: "Masking rules left out because they failed to compile",
			},
			[]string{"target"},
		),
		failureStreak: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "loginwatch_fetch_failure_streak",
				Help: "Consecutive fetch failures per target",
			},
			[]string{"target"},
		),
		lastCapture: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "loginwatch_last_capture_timestamp_seconds",
				Help: "Unix time of the latest stored capture per target",
			},
			[]string{"target"},
		),
	}
	m.registry.MustRegister(
		m.cycles,
		m.fetchSeconds,
		m.storageFailures,
		m.skippedRules,
		m.failureStreak,
		m.lastCapture,
	)
	return m
}

// ObserveCycle counts a finished cycle.
func (m *Metrics) ObserveCycle(target string, c model.Classification) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(target, string(c)).Inc()
}

// ObserveFetch records how long a fetch took.
func (m *Metrics) ObserveFetch(mode model.FetchMode, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchSeconds.WithLabelValues(string(mode)).Observe(d.Seconds())
}

// StorageFailure counts a cycle lost to the repository.
func (m *Metrics) StorageFailure(target string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(target).Inc()
}

// SetSkippedRules records how many rules a target's ruleset left out.
func (m *Metrics) SetSkippedRules(target string, n int) {
	if m == nil {
		return
	}
	m.skippedRules.WithLabelValues(target).Set(float64(n))
}

// SetFailureStreak records the current fetch failure streak.
func (m *Metrics) SetFailureStreak(target string, n int) {
	if m == nil {
		return
	}
	m.failureStreak.WithLabelValues(target).Set(float64(n))
}

// SetLastCapture records when a target was last captured.
func (m *Metrics) SetLastCapture(target string, at time.Time) {
	if m == nil {
		return
	}
	m.lastCapture.WithLabelValues(target).Set(float64(at.Unix()))
}

// Router serves /metrics and /healthz.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}
