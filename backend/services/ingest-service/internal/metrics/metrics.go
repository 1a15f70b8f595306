package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "gasledger_"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	pointsEmitted  *prometheus.CounterVec
	rowsSkipped    *prometheus.CounterVec
	portalRequests *prometheus.CounterVec
}

// New registers all collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_cycles_total",
				Help: "Ingestion cycles by result",
			},
			[]string{"result"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_cycle_duration_seconds",
				Help:    "Ingestion cycle duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		),
		pointsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_points_emitted_total",
				Help: "Statistic points appended to the store by series",
			},
			[]string{"series"},
		),
		rowsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_rows_skipped_total",
				Help: "Usage rows skipped as unparseable by series",
			},
			[]string{"series"},
		),
		portalRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "portal_requests_total",
				Help: "Portal requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.pointsEmitted,
		m.rowsSkipped,
		m.portalRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCycle records one finished ingestion cycle.
func (m *Metrics) ObserveCycle(result string, elapsed time.Duration) {
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) AddPointsEmitted(series string, n int) {
	m.pointsEmitted.WithLabelValues(series).Add(float64(n))
}

func (m *Metrics) AddRowsSkipped(series string, n int) {
	m.rowsSkipped.WithLabelValues(series).Add(float64(n))
}

// ObservePortalRequest matches portal.RequestObserver.
func (m *Metrics) ObservePortalRequest(endpoint, outcome string) {
	m.portalRequests.WithLabelValues(endpoint, outcome).Inc()
}
