package netmesh

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/infogrid/netmesh/metrics"
)

const (
	subsystem = "meshbase"

	resultCommit   = "commit"
	resultRollback = "rollback"
	resultFailed   = "failed"
)

var (
	txCount = metrics.NewCounter(
		"transactions",
		subsystem,
		"Number of transactions by result",
		[]string{"result"},
	)
	txDuration = metrics.NewHistogramWithBuckets(
		"transaction_duration_seconds",
		subsystem,
		"Duration of committed transactions",
		[]string{},
		prometheus.ExponentialBuckets(0.00005, 2, 16),
	).WithLabelValues()
	changeCount = metrics.NewCounter(
		"changes",
		subsystem,
		"Number of committed changes by kind",
		[]string{"kind"},
	)
	decodeFailures = metrics.NewCounter(
		"decode_failures",
		subsystem,
		"Number of persisted replicas that could not be decoded",
		[]string{},
	).WithLabelValues()
)
