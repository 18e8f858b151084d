package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycleDuration prometheus.Histogram
	cycleQuotes   prometheus.Gauge
	signalEvents  *prometheus.CounterVec
	levelGauge    *prometheus.GaugeVec
	regimeGauge   *prometheus.GaugeVec
	thinFraction  prometheus.Gauge
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sigpulse_cycle_duration_seconds",
				Help:    "Duration of detection cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		cycleQuotes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigpulse_cycle_quotes",
				Help: "Number of quotes processed in the last cycle",
			},
		),
		signalEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigpulse_signal_events_total",
				Help: "Total number of signal lifecycle events",
			},
			[]string{"event", "level", "symbol"},
		),
		levelGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigpulse_active_signals",
				Help: "Number of currently active signals per level",
			},
			[]string{"level"},
		),
		regimeGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigpulse_volume_regime",
				Help: "Current volume regime (1 for the active regime, 0 otherwise)",
			},
			[]string{"regime"},
		),
		thinFraction: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigpulse_thin_fraction",
				Help: "Fraction of symbols trading below half their expected volume",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordCycle records the duration and quote count of a completed cycle.
func (r *Recorder) RecordCycle(duration time.Duration, quotes int) {
	r.cycleDuration.Observe(duration.Seconds())
	r.cycleQuotes.Set(float64(quotes))
}

// RecordSignal records a signal lifecycle event.
func (r *Recorder) RecordSignal(event, level, symbol string) {
	r.signalEvents.WithLabelValues(event, level, symbol).Inc()
}

// RecordLevelCounts records the number of active signals per level.
func (r *Recorder) RecordLevelCounts(a0, a1, a2 int) {
	r.levelGauge.WithLabelValues("A0").Set(float64(a0))
	r.levelGauge.WithLabelValues("A1").Set(float64(a1))
	r.levelGauge.WithLabelValues("A2").Set(float64(a2))
}

// RecordRegime records the current volume regime and thin fraction.
func (r *Recorder) RecordRegime(regime string, thin float64) {
	for _, known := range []string{"NORMAL", "LOW_VOLUME", "HOLIDAY_SUSPECT"} {
		v := 0.0
		if known == regime {
			v = 1.0
		}
		r.regimeGauge.WithLabelValues(known).Set(v)
	}
	r.thinFraction.Set(thin)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
