package observability

import (
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the GD portal BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	unitsLinked     *prometheus.CounterVec
	sessionsTotal   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gdbfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbfa_upstream_errors_total",
				Help: "Total errors from upstream services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		unitsLinked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbfa_units_linked_total",
				Help: "Consumer units processed by the linking loop, by result.",
			},
			[]string{"result"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbfa_linking_sessions_total",
				Help: "Linking sessions by lifecycle event.",
			},
			[]string{"event"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrUpstreamError increments the upstream error counter.
func (m *Metrics) IncrUpstreamError(service string) {
	m.upstreamErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrUnitLinked counts one unit through the linking loop.
// result is "linked", "link_failed" or "sync_failed".
func (m *Metrics) IncrUnitLinked(result string) {
	m.unitsLinked.WithLabelValues(result).Inc()
}

// IncrSession counts a session lifecycle event:
// "started", "completed", "restarted", "expired".
func (m *Metrics) IncrSession(event string) {
	m.sessionsTotal.WithLabelValues(event).Inc()
}

// GetLinkingSnapshot returns a snapshot of linking metrics suitable for the
// GET /v1/admin/metrics/linking endpoint.
func (m *Metrics) GetLinkingSnapshot() *domain.LinkingMetrics {
	linked := getCounterValue(m.unitsLinked, "linked")
	linkFailed := getCounterValue(m.unitsLinked, "link_failed")
	syncFailed := getCounterValue(m.unitsLinked, "sync_failed")
	started := getCounterValue(m.sessionsTotal, "started")
	completed := getCounterValue(m.sessionsTotal, "completed")

	attempted := linked + linkFailed + syncFailed
	linkRate := float64(0)
	if attempted > 0 {
		linkRate = linked / attempted
	}
	completionRate := float64(0)
	if started > 0 {
		completionRate = completed / started
	}

	return &domain.LinkingMetrics{
		SessionsStarted:   int64(started),
		SessionsCompleted: int64(completed),
		UnitsLinked:       int64(linked),
		UnitsFailed:       int64(linkFailed + syncFailed),
		LinkSuccessRate:   linkRate,
		CompletionRate:    completionRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
