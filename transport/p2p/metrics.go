package p2p

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/infogrid/netmesh/metrics"
)

const subsystem = "p2p"

var (
	sent = metrics.NewCounter(
		"sent",
		subsystem,
		"Messages sent by result",
		[]string{"result"},
	)
	received = metrics.NewCounter(
		"received",
		subsystem,
		"Messages received by result",
		[]string{"result"},
	)
	dropped = metrics.NewCounter(
		"dropped",
		subsystem,
		"Incoming streams reset because the queue was full",
		[]string{},
	).WithLabelValues()
	queued = metrics.NewGauge(
		"queue",
		subsystem,
		"Incoming streams waiting for a worker",
		[]string{},
	).WithLabelValues()
	queueLatency = metrics.NewHistogramWithBuckets(
		"queue_latency_seconds",
		subsystem,
		"Time an incoming stream waited in the queue",
		[]string{},
		prometheus.ExponentialBuckets(0.001, 2, 12),
	).WithLabelValues()
	sendLatency = metrics.NewHistogramWithBuckets(
		"send_latency_seconds",
		subsystem,
		"Time to open a stream and write one message",
		[]string{},
		prometheus.ExponentialBuckets(0.001, 2, 12),
	).WithLabelValues()
)
