package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Presence metrics
var (
	PresenceOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_online_users",
		Help: "Current number of users with a live session",
	})

	PresenceRegisterTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_register_total",
		Help: "Total number of presence registrations",
	}, []string{"kind"}) // "new", "reconnect"

	PresenceUnregisterTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_unregister_total",
		Help: "Total number of presence unregistrations",
	})
)

// Message delivery metrics
var (
	MessagesDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_delivered_total",
		Help: "Total number of messages routed by the delivery coordinator",
	}, []string{"kind", "outcome"}) // kind: "private", "group"; outcome: "live", "queued"

	TypingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typing_events_total",
		Help: "Total number of typing signals relayed",
	}, []string{"kind"}) // "start", "stop"

	UnreadResetTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unread_reset_total",
		Help: "Total number of mark-as-read operations",
	})
)

// Call signaling metrics
var (
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calls_active",
		Help: "Current number of calls in a non-terminal state",
	})

	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calls_total",
		Help: "Total number of calls by terminal status",
	}, []string{"status"}) // "completed", "rejected", "missed", "unavailable"

	CallDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "call_duration_seconds",
		Help:    "Duration of completed calls",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	SignalsRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_relayed_total",
		Help: "Total number of WebRTC negotiation payloads relayed",
	}, []string{"kind"}) // "offer", "answer", "ice"
)

// Transport metrics
var (
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections",
		Help: "Current number of open WebSocket connections",
	})

	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_events_total",
		Help: "Total number of inbound socket events by name",
	}, []string{"event"})

	WebSocketDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_dropped_total",
		Help: "Total number of outbound events dropped",
	}, []string{"reason"}) // "slow_client", "closed"
)

// Store metrics
var (
	StoreFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_flush_total",
		Help: "Total number of JSON collection flushes",
	}, []string{"collection", "status"})

	StoreFlushQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "store_flush_queue_length",
		Help: "Current length of the async write queue",
	})
)

// Push metrics
var (
	PushSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_sent_total",
		Help: "Total number of push notifications sent",
	}, []string{"provider", "status"})
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Number of HTTP requests currently being served",
	})
)
