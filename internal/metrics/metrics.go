// Package metrics holds the Prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Activity stream results.
const (
	ActivityQueued = "queued"
	ActivityFailed = "failed"
)

// Bridge directions.
const (
	DirectionOut     = "out"
	DirectionIn      = "in"
	DirectionDropped = "dropped"
)

var (
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Current number of connected WebSocket clients",
		},
	)

	RoomsJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_rooms_joined_total",
			Help: "Total number of room memberships created",
		},
	)

	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_received_total",
			Help: "Total number of frames received from clients",
		},
		[]string{"type"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_sent_total",
			Help: "Total number of frames queued to clients",
		},
		[]string{"type"},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Total number of sends that failed and dropped the recipient",
		},
	)

	BridgeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_bridge_events_total",
			Help: "Total number of room broadcasts exchanged with other relay instances",
		},
		[]string{"direction"},
	)

	ActivityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_activity_events_total",
			Help: "Total number of publishes sent to the activity stream, by result",
		},
		[]string{"result"},
	)
)
