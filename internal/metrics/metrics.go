// Package metrics exposes prometheus instrumentation for the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for inbound frames that are discarded without a reply.
const (
	DropMalformed    = "malformed"
	DropUnknownType  = "unknown_type"
	DropInvalid      = "invalid"
	DropRateLimited  = "rate_limited"
	DropWrongRole    = "wrong_role"
	DropNoSession    = "no_session"
	DropStaleSession = "stale_session"
)

// Close reasons for chat sessions.
const (
	CloseByAdmin = "admin"
	CloseByAPI   = "api"
	CloseByIdle  = "idle"
)

var (
	// ConnectionsActive tracks live websocket connections on this instance.
	// Labels:
	//   - role: "visitor", "admin"
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livechat_connections_active",
			Help: "Number of live chat websocket connections",
		},
		[]string{"role"},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_connections_rejected_total",
			Help: "Websocket upgrade requests rejected before upgrade",
		},
		[]string{"reason"},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_frames_received_total",
			Help: "Inbound frames decoded by the protocol handler",
		},
		[]string{"type"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_frames_dropped_total",
			Help: "Inbound frames dropped without a reply",
		},
		[]string{"reason"},
	)

	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_messages_persisted_total",
			Help: "Chat messages written to the session store",
		},
		[]string{"sender"},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_sessions_closed_total",
			Help: "Chat sessions transitioned to closed",
		},
		[]string{"reason"},
	)

	StoreFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_store_failures_total",
			Help: "Session store errors surfaced to a connection",
		},
	)

	// SlowConsumerEvictions counts connections removed because their send
	// queue was full or already closed.
	SlowConsumerEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_slow_consumer_evictions_total",
			Help: "Connections evicted after a failed fan-out send",
		},
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_relay_errors_total",
			Help: "Cross-instance fan-out errors",
		},
		[]string{"op"},
	)
)

func RecordDrop(reason string) {
	FramesDropped.WithLabelValues(reason).Inc()
}

func RecordSessionClosed(reason string) {
	SessionsClosed.WithLabelValues(reason).Inc()
}
