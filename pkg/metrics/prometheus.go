package metrics

import (
	domrepo "EduX/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	buckets      *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder { return NewWith(prometheus.DefaultRegisterer) }

// NewWith creates a recorder registered on reg.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edux_messages_sent_total",
				Help: "Total number of trades handed to a backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edux_errors_total",
				Help: "Total number of errors and dropped events, by kind",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edux_last_price",
				Help: "Last traded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edux_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		buckets: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edux_candle_buckets",
				Help: "Number of candle buckets held for the current symbol",
			},
			[]string{"timeframe"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
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

// RecordBuckets sets the bucket count of a timeframe.
func (r *Recorder) RecordBuckets(tf domrepo.Timeframe, n int) {
	r.buckets.WithLabelValues(string(tf)).Set(float64(n))
}

var _ domrepo.Metrics = (*Recorder)(nil)

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordMessageSent(string, string)     {}
func (Nop) RecordError(string)                   {}
func (Nop) RecordLastPrice(string, float64)      {}
func (Nop) RecordLatency(string, float64)        {}
func (Nop) RecordBuckets(domrepo.Timeframe, int) {}

var _ domrepo.Metrics = Nop{}
