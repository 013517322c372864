// Package metrics exposes acquisition counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dexview"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry     *prometheus.Registry
	acquisitions *prometheus.CounterVec
	duration     prometheus.Histogram
	details      *prometheus.CounterVec
	excluded     prometheus.Counter
	items        prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Catalog acquisitions by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquisition_duration_seconds",
			Help:      "Wall time of a full catalog acquisition.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		details: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_fetches_total",
			Help:      "Detail endpoint calls by outcome.",
		}, []string{"outcome"}),
		excluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_excluded_total",
			Help:      "Items dropped because their detail record had no categories.",
		}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_items",
			Help:      "Items in the most recent successful acquisition.",
		}),
	}
	reg.MustRegister(
		m.acquisitions, m.duration, m.details, m.excluded, m.items,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// AcquisitionDone records one finished acquisition.
func (m *Metrics) AcquisitionDone(ok bool, items int, d time.Duration) {
	m.acquisitions.WithLabelValues(outcome(ok)).Inc()
	m.duration.Observe(d.Seconds())
	if ok {
		m.items.Set(float64(items))
	}
}

// DetailFetched records one detail call.
func (m *Metrics) DetailFetched(ok bool) {
	m.details.WithLabelValues(outcome(ok)).Inc()
}

// ItemsExcluded records items dropped by the malformed-record policy.
func (m *Metrics) ItemsExcluded(n int) {
	m.excluded.Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
