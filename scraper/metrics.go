package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/PavelSimon/EDC-data/models"
)

const namespace = "edc_scraper"

// Metrics holds the scraper collectors. Every method is safe on a nil
// receiver so tests can run without metrics.
type Metrics struct {
	Registry *prometheus.Registry

	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	days       *prometheus.CounterVec
	records    prometheus.Counter
	errors     *prometheus.CounterVec
	lastScrape prometheus.Gauge
}

// NewMetrics registers the scraper collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent to the publication page, by phase.",
		}, []string{"phase"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of requests to the publication page, by phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		days: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_total",
			Help:      "Scraped days by outcome.",
		}, []string{"status"}),
		records: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records parsed from the daily tables.",
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed days and skipped rows, by kind.",
		}, []string{"kind"}),
		lastScrape: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_range_completed_timestamp_seconds",
			Help:      "Unix time the last range scrape finished.",
		}),
	}
}

func (m *Metrics) request(phase string, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(phase).Inc()
	m.latency.WithLabelValues(phase).Observe(took.Seconds())
}

func (m *Metrics) day(o models.DayOutcome) {
	if m == nil {
		return
	}
	m.days.WithLabelValues(string(o.Status)).Inc()
	m.records.Add(float64(len(o.Records)))
}

// IncError counts one failure of kind.
func (m *Metrics) IncError(kind ErrorKind) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) rangeDone(at time.Time) {
	if m == nil {
		return
	}
	m.lastScrape.Set(float64(at.Unix()))
}
