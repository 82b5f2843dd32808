// Package metrics provides Prometheus metrics for the nonogram service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector of the service on its own registry
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	levelsSaved     prometheus.Counter
	levelsPurged    prometheus.Counter
	scoresProcessed prometheus.Counter
	scoresFailed    prometheus.Counter
	backpressure    prometheus.Counter
	scoreLatency    prometheus.Histogram
	queueDepth      prometheus.Gauge
	wsClients       prometheus.Gauge
	catalogVersion  prometheus.Gauge
	errorsReported  *prometheus.CounterVec
}

// Option applies a configuration option to the Manager
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry registers the collectors on the given registry instead of a fresh one
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a metrics manager on a custom registry
func NewManager(opts ...Option) *Manager {
	m := &Manager{namespace: "nonogram"}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(m.registry)
	m.levelsSaved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "levels_saved_total",
		Help:      "Total number of levels persisted",
	})
	m.levelsPurged = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "levels_purged_total",
		Help:      "Total number of soft-deleted levels removed by the purger",
	})
	m.scoresProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "scores_processed_total",
		Help:      "Total number of score submissions persisted by the worker pool",
	})
	m.scoresFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "scores_failed_total",
		Help:      "Total number of score submissions the worker pool failed to persist",
	})
	m.backpressure = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "backpressure_total",
		Help:      "Total number of score submissions rejected because the queue was full",
	})
	m.scoreLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "score_processing_seconds",
		Help:      "Time spent persisting one score submission",
		Buckets:   prometheus.DefBuckets,
	})
	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "queue_depth",
		Help:      "Score submissions waiting in the queue",
	})
	m.wsClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Connected websocket clients",
	})
	m.catalogVersion = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "catalog_version",
		Help:      "Last observed level catalog version",
	})
	m.errorsReported = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "errors_reported_total",
		Help:      "Errors sent to the report sink by component and function",
	}, []string{"file", "fn"})

	return m
}

// Registry returns the registry the collectors live on
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ErrorReported implements errs.Counter
func (m *Manager) ErrorReported(file, fn string) {
	m.errorsReported.WithLabelValues(file, fn).Inc()
}

// LevelsSaved adds n persisted levels
func (m *Manager) LevelsSaved(n int) { m.levelsSaved.Add(float64(n)) }

// LevelsPurged adds n purged levels
func (m *Manager) LevelsPurged(n int) { m.levelsPurged.Add(float64(n)) }

// ScoreProcessed records one persisted submission and its latency in seconds
func (m *Manager) ScoreProcessed(seconds float64) {
	m.scoresProcessed.Inc()
	m.scoreLatency.Observe(seconds)
}

// ScoreFailed records one failed submission
func (m *Manager) ScoreFailed() { m.scoresFailed.Inc() }

// Backpressure records one rejected submission
func (m *Manager) Backpressure() { m.backpressure.Inc() }

// QueueDepth sets the number of queued submissions
func (m *Manager) QueueDepth(n int) { m.queueDepth.Set(float64(n)) }

// WebsocketClients sets the number of connected clients
func (m *Manager) WebsocketClients(n int) { m.wsClients.Set(float64(n)) }

// CatalogVersion sets the last observed catalog version
func (m *Manager) CatalogVersion(v int64) { m.catalogVersion.Set(float64(v)) }
