package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstream_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskstream_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskstream_websocket_connections_active",
			Help: "Current number of registered WebSocket connections",
		},
	)

	WSRoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskstream_websocket_rooms_active",
			Help: "Current number of task rooms with at least one viewer",
		},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstream_websocket_messages_received_total",
			Help: "Total number of inbound WebSocket frames by outcome",
		},
		[]string{"type", "outcome"},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstream_websocket_messages_sent_total",
			Help: "Total number of outbound frames queued to peers",
		},
		[]string{"type"},
	)

	WSSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskstream_websocket_send_failures_total",
			Help: "Total number of peers dropped because a send failed",
		},
	)

	WSRepliesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskstream_websocket_replies_dropped_total",
			Help: "Total number of error replies dropped because the sender's queue was full",
		},
	)

	WSSessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstream_websocket_sessions_closed_total",
			Help: "Total number of WebSocket sessions by close reason",
		},
		[]string{"reason"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskstream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstream_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// UpdateRoomGauges publishes the registry's current size.
func UpdateRoomGauges(connections, rooms int) {
	WSConnectionsActive.Set(float64(connections))
	WSRoomsActive.Set(float64(rooms))
}
