package sql

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/infogrid/netmesh/metrics"
)

const namespace = "database"

var (
	queryDuration = metrics.NewHistogramWithBuckets(
		"query_duration",
		namespace,
		"Duration of the query in seconds",
		[]string{"query"},
		prometheus.ExponentialBuckets(0.0001, 2, 20),
	)

	connWaitLatency = metrics.NewHistogramWithBuckets(
		"conn_wait_latency",
		namespace,
		"Time spent waiting for a pooled connection in seconds",
		[]string{},
		prometheus.ExponentialBuckets(0.00001, 2, 20),
	).WithLabelValues()
)

func observeQuery(query string, start time.Time) {
	queryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}
