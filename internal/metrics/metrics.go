package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors, labeled per network so one stalled
// chain is visible without drowning in the others.
type Metrics struct {
	blocksProcessed *prometheus.CounterVec
	heightErrors    *prometheus.CounterVec
	tipErrors       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	lastHeight      *prometheus.GaugeVec
	tipHeight       *prometheus.GaugeVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			blocksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "chainsyncd_blocks_processed_total",
				Help: "Total number of blocks fetched, persisted, and published",
			}, []string{"network"}),
			heightErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "chainsyncd_height_errors_total",
				Help: "Total number of per-height fetch/persist failures",
			}, []string{"network"}),
			tipErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "chainsyncd_tip_errors_total",
				Help: "Total number of failed tip-height queries",
			}, []string{"network"}),
			publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "chainsyncd_publish_failures_total",
				Help: "Total number of non-fatal publish failures",
			}, []string{"network"}),
			lastHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "chainsyncd_last_processed_height",
				Help: "Highest height durably processed per network",
			}, []string{"network"}),
			tipHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "chainsyncd_tip_height",
				Help: "Most recent tip height observed per network",
			}, []string{"network"}),
		}
		prometheus.MustRegister(
			metrics.blocksProcessed,
			metrics.heightErrors,
			metrics.tipErrors,
			metrics.publishFailures,
			metrics.lastHeight,
			metrics.tipHeight,
		)
	})
	return metrics
}

// BlockProcessed records one fully processed height.
func (m *Metrics) BlockProcessed(network string, height uint64) {
	if m != nil {
		m.blocksProcessed.WithLabelValues(network).Inc()
		m.lastHeight.WithLabelValues(network).Set(float64(height))
	}
}

// HeightError records a per-height fetch or persist failure.
func (m *Metrics) HeightError(network string) {
	if m != nil {
		m.heightErrors.WithLabelValues(network).Inc()
	}
}

// TipError records a failed tip query.
func (m *Metrics) TipError(network string) {
	if m != nil {
		m.tipErrors.WithLabelValues(network).Inc()
	}
}

// TipObserved records the latest remote tip height.
func (m *Metrics) TipObserved(network string, height uint64) {
	if m != nil {
		m.tipHeight.WithLabelValues(network).Set(float64(height))
	}
}

// PublishFailure records a non-fatal publish failure.
func (m *Metrics) PublishFailure(network string) {
	if m != nil {
		m.publishFailures.WithLabelValues(network).Inc()
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
