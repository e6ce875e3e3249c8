// Package metrics registers the prometheus instrumentation named in
// SPEC_FULL's domain stack: sync throughput, in-flight syncing count,
// reconnect attempts, and handshake failures by kind. Grounded on the
// teacher pack's internal/monitoring package — same promauto-constructed
// Metrics struct shape, renamed to this domain's counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SyncMessagesSent     prometheus.Counter
	SyncMessagesReceived prometheus.Counter
	ActionsSynced        prometheus.Counter
	SyncingInFlight       prometheus.Gauge
	HandshakeFailures    *prometheus.CounterVec
	ReconnectAttempts    prometheus.Counter
	HeartbeatTimeouts    prometheus.Counter
	StoreErrors          prometheus.Counter
}

// New registers every metric against the default registry. Callers that
// want an isolated registry (tests, multiple nodes in one process) should
// construct their own prometheus.Registry and use NewWithRegisterer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SyncMessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "actionsync_sync_messages_sent_total",
			Help: "Total number of outgoing sync wire messages.",
		}),
		SyncMessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "actionsync_sync_messages_received_total",
			Help: "Total number of incoming sync wire messages.",
		}),
		ActionsSynced: factory.NewCounter(prometheus.CounterOpts{
			Name: "actionsync_actions_synced_total",
			Help: "Total number of times a node's outgoing sync backlog was fully acknowledged by its peer.",
		}),
		SyncingInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "actionsync_syncing_in_flight",
			Help: "Sum of each attached Node's in-flight (unacknowledged) sync count.",
		}),
		HandshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "actionsync_handshake_failures_total",
			Help: "Handshake failures by error kind.",
		}, []string{"kind"}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "actionsync_reconnect_attempts_total",
			Help: "Total number of reconnect dial attempts made by the supervisor.",
		}),
		HeartbeatTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "actionsync_heartbeat_timeouts_total",
			Help: "Total number of ping/pong heartbeat timeouts.",
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "actionsync_store_errors_total",
			Help: "Total number of Store operation errors.",
		}),
	}
}
