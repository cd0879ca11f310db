// Package metrics exposes the broker's Prometheus instrumentation.
// Several collectors here track the same quantities as the $SOL/...
// stats the broker publishes over MQTT itself (see internal/server's
// stats publisher), but they are separate counters updated alongside the
// server's own, not shared storage. Uptime and memory use have no
// collector here, and ConnectionsTotal, SubscriptionsActive and
// TopicsActive have no $SOL/... counterpart.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClientsConnected tracks the number of currently connected clients.
	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mqtt_clients_connected",
		Help: "Number of currently connected MQTT clients",
	})

	// ClientsDisconnectedTotal counts clients that have disconnected
	// since startup, clean or otherwise.
	ClientsDisconnectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_clients_disconnected_total",
		Help: "Total number of MQTT clients disconnected since startup",
	})

	// MessagesReceived counts total messages received, by packet type.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_messages_received_total",
			Help: "Total number of MQTT messages received by type",
		},
		[]string{"type"},
	)

	// MessagesSent counts total messages sent, by packet type. Nothing in
	// the broker increments it; the sent-message total is reported only on
	// $SOL/broker/messages/sent/.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_messages_sent_total",
			Help: "Total number of MQTT messages sent by type",
		},
		[]string{"type"},
	)

	// BytesReceived tracks bytes received from clients.
	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_bytes_received_total",
		Help: "Total bytes received from MQTT clients",
	})

	// BytesSent tracks bytes sent to clients.
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_bytes_sent_total",
		Help: "Total bytes sent to MQTT clients",
	})

	// ConnectionsTotal tracks total accepted connections.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_connections_total",
		Help: "Total number of accepted connections",
	})

	// SubscriptionsActive tracks the number of live subscriber entries
	// across all topics.
	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mqtt_subscriptions_active",
		Help: "Number of active subscriptions",
	})

	// TopicsActive tracks the number of distinct topics in the index.
	TopicsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mqtt_topics_active",
		Help: "Number of topics currently present in the topic index",
	})
)
