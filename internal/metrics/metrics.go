package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NATSConnectionStatus is 1 while the NATS connection is up.
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_nats_connection_status",
		Help: "NATS connection status (1 connected, 0 disconnected)",
	})

	// EventsReceived counts inbound queue messages by source and kind.
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_events_received_total",
		Help: "Inbound queue messages received",
	}, []string{"blockchain", "kind"})

	// EventsProcessed counts reconcile outcomes. outcome is one of
	// success, bad_request, conflict, retryable, internal.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_events_processed_total",
		Help: "Reconcile outcomes by classification",
	}, []string{"blockchain", "kind", "outcome"})

	// ReconcileDuration times one reconcile pass per entry point.
	ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_reconcile_duration_seconds",
		Help:    "Duration of one reconcile pass",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"entrypoint"})

	// BridgeActionsPublished counts outbound bridge-action messages.
	BridgeActionsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_actions_published_total",
		Help: "Bridge action messages published to the worker queue",
	}, []string{"blockchain"})

	// ConversionsCreated counts new conversions by creator.
	ConversionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_conversions_created_total",
		Help: "Conversions created",
	}, []string{"created_by"})

	// ConversionsExpired counts TTL sweep results.
	ConversionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_conversions_expired_total",
		Help: "Conversions expired by the TTL sweep",
	})

	// HTTPRequestDuration times HTTP handlers.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_http_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
