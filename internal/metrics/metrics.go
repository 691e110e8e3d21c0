package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeliveriesTotal tracks delivery attempts per channel and outcome
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotel_notification_deliveries_total",
			Help: "Total number of delivery attempts",
		},
		[]string{"channel", "organization_id", "status"}, // sent, failed, queued, throttled
	)

	// DispatchDuration tracks the time to process one submitted event
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hotel_notification_dispatch_duration_seconds",
			Help:    "Event dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// EventsUnrouted counts events with no matching rule
	EventsUnrouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotel_notification_events_unrouted_total",
			Help: "Total number of events with no rule configured",
		},
		[]string{"event_type"},
	)

	// LiveConnections is the number of registered real-time connections
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotel_notification_live_connections",
			Help: "Number of live real-time connections",
		},
	)

	// RealtimePushes counts pushes to individual connections
	RealtimePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotel_notification_realtime_pushes_total",
			Help: "Total number of pushes to live connections",
		},
		[]string{"status"},
	)

	// PendingEnqueued counts notifications persisted for offline users
	PendingEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotel_notification_pending_enqueued_total",
			Help: "Total number of pending notifications persisted",
		},
	)

	// PendingReplayed counts pending notifications delivered on reconnect
	PendingReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotel_notification_pending_replayed_total",
			Help: "Total number of pending notifications replayed",
		},
	)

	// StaleConnectionsEvicted counts connections removed by the stale sweep
	StaleConnectionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotel_notification_stale_connections_evicted_total",
			Help: "Total number of stale connections evicted",
		},
	)

	// DispatchQueueSize tracks the current async dispatch queue size
	DispatchQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotel_notification_dispatch_queue_size",
			Help: "Current number of events in the priority dispatch queue",
		},
	)

	// DigestBuffered tracks events waiting for the daily summary flush
	DigestBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotel_notification_digest_buffered",
			Help: "Number of events buffered for the daily summary",
		},
	)

	// SMTPSessions tracks the number of open SMTP sessions
	SMTPSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotel_notification_smtp_sessions",
			Help: "Number of open SMTP sessions",
		},
	)

	// DLQSize tracks the size of the dead letter queue
	DLQSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotel_notification_dlq_size",
			Help: "Number of failed deliveries in the dead letter queue",
		},
	)

	// EmailBounces tracks email bounce events
	EmailBounces = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotel_notification_email_bounces_total",
			Help: "Total number of email bounce events",
		},
		[]string{"type"}, // hard, soft, complaint
	)

	// RateLimitExceeded tracks rate limit violations
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotel_notification_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"organization_id"},
	)

	// ConsumerRestarts tracks event consumer restart events
	ConsumerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotel_notification_consumer_restarts_total",
			Help: "Total number of event consumer restarts",
		},
		[]string{"source"},
	)
)
