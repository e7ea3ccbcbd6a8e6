// Package metrics exposes Prometheus instrumentation for the sampling loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const estimatorLabel = "estimator"

// DefaultBuckets spans 100ns to about 26ms; estimator calls live at the
// bottom of that range, scheduling hiccups at the top.
var DefaultBuckets = prometheus.ExponentialBuckets(100e-9, 4, 10)

// Manager owns the loop metrics and the registry they are registered on.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         *prometheus.Registry

	cycles                 prometheus.Counter
	calibrationUnavailable prometheus.Counter
	raw                    prometheus.Gauge
	millivolts             prometheus.Gauge
	estimatorDuration      *prometheus.HistogramVec
	estimatorPercent       *prometheus.GaugeVec
}

// NewManager creates a Manager on its own registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "adcbench",
		histogramBuckets: DefaultBuckets,
		constLabels:      map[string]string{},
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.cycles = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Name:        "cycles_total",
		Help:        "Total number of completed sampling cycles",
		ConstLabels: m.constLabels,
	})

	m.calibrationUnavailable = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Name:        "calibration_unavailable_total",
		Help:        "Cycles whose sample had no calibrated voltage",
		ConstLabels: m.constLabels,
	})

	m.raw = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Name:        "raw",
		Help:        "Last raw ADC reading",
		ConstLabels: m.constLabels,
	})

	m.millivolts = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Name:        "millivolts",
		Help:        "Last calibrated voltage in millivolts (-1 when unavailable)",
		ConstLabels: m.constLabels,
	})

	m.estimatorDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Name:        "estimator_duration_seconds",
		Help:        "Wall-clock time of one estimator call",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{estimatorLabel})

	m.estimatorPercent = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Name:        "estimator_percent",
		Help:        "Last percentage produced by each estimator",
		ConstLabels: m.constLabels,
	}, []string{estimatorLabel})
}

// RecordSample records one acquired sample.
func (m *Manager) RecordSample(raw, mv int) {
	m.cycles.Inc()
	m.raw.Set(float64(raw))
	m.millivolts.Set(float64(mv))
	if mv < 0 {
		m.calibrationUnavailable.Inc()
	}
}

// RecordEstimate records one estimator call.
func (m *Manager) RecordEstimate(estimator string, percent float64, elapsed time.Duration) {
	m.estimatorDuration.WithLabelValues(estimator).Observe(elapsed.Seconds())
	m.estimatorPercent.WithLabelValues(estimator).Set(percent)
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
