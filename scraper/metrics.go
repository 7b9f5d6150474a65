package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	ItemsExtractedTotal prometheus.Counter
	CoolDownsTotal      prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
	InFlight            prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the fetcher.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for fetcher requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_extracted_total",
			Help: "Total number of records sent to the pipeline.",
		},
	)
	coolDowns := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_cooldowns_total",
			Help: "Total number of saturation cool-downs taken before releasing a permit.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_requests_in_flight",
			Help: "Concurrency permits currently held.",
		},
	)

	registry.MustRegister(requests, requestDuration, itemsExtracted, coolDowns, errorsTotal, inFlight)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		ItemsExtractedTotal: itemsExtracted,
		CoolDownsTotal:      coolDowns,
		ErrorsTotal:         errorsTotal,
		InFlight:            inFlight,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddItems adds n to the extracted records counter.
func (m *Metrics) AddItems(n int) {
	if m == nil {
		return
	}
	m.ItemsExtractedTotal.Add(float64(n))
}

// IncCoolDowns increments the cool-down counter.
func (m *Metrics) IncCoolDowns() {
	if m == nil {
		return
	}
	m.CoolDownsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// SetInFlight records the number of permits held.
func (m *Metrics) SetInFlight(n int64) {
	if m == nil {
		return
	}
	m.InFlight.Set(float64(n))
}
