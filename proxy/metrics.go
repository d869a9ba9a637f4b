package proxy

import (
	"github.com/infogrid/netmesh/metrics"
)

const subsystem = "proxy"

var (
	sent = metrics.NewCounter(
		"messages_sent",
		subsystem,
		"Number of messages sent by kind",
		[]string{"kind"},
	)
	sentRequests = sent.WithLabelValues("request")
	sentRetries  = sent.WithLabelValues("retry")
	sentAcks     = sent.WithLabelValues("ack")
	sentCease    = sent.WithLabelValues("cease")

	received = metrics.NewCounter(
		"messages_received",
		subsystem,
		"Number of received messages by how they were handled",
		[]string{"result"},
	)
	receivedApplied   = received.WithLabelValues("applied")
	receivedDuplicate = received.WithLabelValues("duplicate")
	receivedBuffered  = received.WithLabelValues("buffered")
	receivedAck       = received.WithLabelValues("ack")
	receivedInvalid   = received.WithLabelValues("invalid")
	receivedFailed    = received.WithLabelValues("failed")
	receivedDropped   = received.WithLabelValues("dropped")

	conflicts = metrics.NewCounter(
		"conflicts",
		subsystem,
		"Number of conflicting remote changes",
		[]string{},
	).WithLabelValues()

	outcomes = metrics.NewCounter(
		"transfer_requests",
		subsystem,
		"Outcome of lock and home replica requests from remote meshbases",
		[]string{"kind", "outcome"},
	)

	lost = metrics.NewCounter(
		"lost",
		subsystem,
		"Number of proxies lost after exhausting retries",
		[]string{},
	).WithLabelValues()

	outstanding = metrics.NewGauge(
		"outstanding_requests",
		subsystem,
		"Number of requests waiting for an acknowledgement",
		[]string{},
	).WithLabelValues()
)
