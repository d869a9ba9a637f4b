package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/infogrid/netmesh/metrics"
)

const subsystem = "sweeper"

var (
	sweepLatency = metrics.NewHistogramWithBuckets(
		"lot_seconds",
		subsystem,
		"Time spent per lot in seconds",
		[]string{"step"},
		prometheus.ExponentialBuckets(0.001, 2, 14),
	)
	scanLatency   = sweepLatency.WithLabelValues("scan")
	removeLatency = sweepLatency.WithLabelValues("remove")

	replicas = metrics.NewCounter(
		"replicas",
		subsystem,
		"Replicas visited by the sweeper by outcome",
		[]string{"outcome"},
	)
	visited      = replicas.WithLabelValues("visited")
	deletedCount = replicas.WithLabelValues("deleted")
	purgedCount  = replicas.WithLabelValues("purged")
	failedCount  = replicas.WithLabelValues("failed")
)
