// Package metrics exposes Prometheus collectors for the download-list controller.
//
// Every Metrics value owns its own registry so several controllers (and tests)
// can live in one process. All methods are safe on a nil *Metrics, which makes
// instrumentation optional for callers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "xdm"

// Metrics groups the controller's collectors.
type Metrics struct {
	registry *prometheus.Registry

	// savesTotal counts snapshot writes by collection and result (ok/error).
	savesTotal *prometheus.CounterVec
	// saveDuration tracks how long a snapshot write takes.
	saveDuration *prometheus.HistogramVec
	// throttledTotal counts progress updates that did not reach storage.
	throttledTotal prometheus.Counter
	listSize       *prometheus.GaugeVec
	eventsTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.savesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_saves_total",
			Help:      "Download list snapshot writes by collection and result.",
		},
		[]string{"collection", "result"},
	)
	m.saveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "list_save_duration_seconds",
			Help:      "Time spent writing a download list snapshot.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection"},
	)
	m.throttledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_saves_throttled_total",
			Help:      "Progress updates applied in memory without an immediate save.",
		},
	)
	m.listSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "list_entries",
			Help:      "Number of entries per download list.",
		},
		[]string{"collection"},
	)
	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_events_total",
			Help:      "Callbacks received from the download engine by kind.",
		},
		[]string{"event"},
	)

	m.registry.MustRegister(m.savesTotal, m.saveDuration, m.throttledTotal, m.listSize, m.eventsTotal)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSave records one snapshot write.
func (m *Metrics) ObserveSave(collection string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.savesTotal.WithLabelValues(collection, result).Inc()
	m.saveDuration.WithLabelValues(collection).Observe(d.Seconds())
}

// IncThrottled records a progress update whose save was skipped.
func (m *Metrics) IncThrottled() {
	if m == nil {
		return
	}
	m.throttledTotal.Inc()
}

// SetListSize publishes the current length of a collection.
func (m *Metrics) SetListSize(collection string, n int) {
	if m == nil {
		return
	}
	m.listSize.WithLabelValues(collection).Set(float64(n))
}

// IncEvent records an engine callback.
func (m *Metrics) IncEvent(event string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event).Inc()
}
