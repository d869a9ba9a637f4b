package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the basic namespace where all metrics are defined under.
	Namespace = "netmesh"
)

// NewCounter creates a Counter metrics under the global namespace returns nop if metrics are disabled.
func NewCounter(name, subsystem, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewGauge creates a Gauge metrics under the global namespace returns nop if metrics are disabled.
func NewGauge(name, subsystem, help string, labels []string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewHistogramWithBuckets creates a Histogram metrics with custom buckets.
func NewHistogramWithBuckets(name, subsystem, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

// roundTripLatency measures the time between sending an xpriso message and
// receiving its acknowledgement, labeled by the transport that carried it.
var roundTripLatency = NewHistogramWithBuckets(
	"xpriso_round_trip_seconds",
	"",
	"Time between sending a message and receiving its acknowledgement",
	[]string{"transport"},
	prometheus.ExponentialBuckets(0.001, 2, 14),
)

// ReportRoundTrip records a completed request/acknowledgement exchange.
func ReportRoundTrip(transport string, latency time.Duration) {
	roundTripLatency.WithLabelValues(transport).Observe(latency.Seconds())
}
