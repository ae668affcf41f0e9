package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	refreshes  *prometheus.CounterVec
	bandGauge  *prometheus.GaugeVec
	signals    *prometheus.CounterVec
	errors     *prometheus.CounterVec
	fetchHist  *prometheus.HistogramVec
	refreshSec *prometheus.HistogramVec
}

// New creates a Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		refreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perpscope_refreshes_total",
				Help: "Total refresh cycles by result",
			},
			[]string{"result"},
		),
		bandGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "perpscope_band_markets",
				Help: "Markets per relevance band in the current snapshot",
			},
			[]string{"band"},
		),
		signals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perpscope_signals_total",
				Help: "Total signals detected by kind",
			},
			[]string{"kind"},
		),
		errors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perpscope_errors_total",
				Help: "Total errors encountered",
			},
			[]string{"type"},
		),
		fetchHist: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perpscope_fetch_duration_seconds",
				Help:    "Upstream fetch latency by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		refreshSec: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perpscope_refresh_duration_seconds",
				Help:    "Full refresh cycle duration",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"result"},
		),
	}
}

// RecordRefresh records the outcome and duration of a refresh cycle.
func (r *Recorder) RecordRefresh(result string, seconds float64) {
	r.refreshes.WithLabelValues(result).Inc()
	r.refreshSec.WithLabelValues(result).Observe(seconds)
}

// RecordBandCount records the market count for a band.
func (r *Recorder) RecordBandCount(band string, n int) {
	r.bandGauge.WithLabelValues(band).Set(float64(n))
}

// RecordSignal records a detected signal.
func (r *Recorder) RecordSignal(kind string) {
	r.signals.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordFetchLatency records upstream fetch latency in seconds.
func (r *Recorder) RecordFetchLatency(op string, seconds float64) {
	r.fetchHist.WithLabelValues(op).Observe(seconds)
}
