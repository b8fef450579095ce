// Package metrics exposes Prometheus instrumentation for the realtime service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teemates"

var (
	// EventsProcessed counts domain events fully handled, by type.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_processed_total",
		Help:      "Domain events successfully dispatched to a handler.",
	}, []string{"type"})

	// EventsDropped counts events discarded before dispatch, by reason
	// (malformed, invalid, unknown_type, handler_error, handler_panic).
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Domain events dropped or failed during dispatch.",
	}, []string{"reason"})

	// JobsProcessed counts finished job attempts by queue and outcome
	// (completed, retried, failed).
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Job attempts by queue and outcome.",
	}, []string{"queue", "outcome"})

	// JobsEnqueued counts accepted enqueues by queue; deduplicated enqueues
	// are counted separately.
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Jobs accepted into a queue.",
	}, []string{"queue"})

	// JobsDeduplicated counts enqueues skipped because an active job held
	// the same identity key.
	JobsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "deduplicated_total",
		Help:      "Enqueue attempts skipped by identity-key dedup.",
	}, []string{"queue"})

	// WSConnections tracks live WebSocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Currently connected WebSocket clients.",
	})

	// WSBroadcasts counts frames fanned out to rooms, by frame type.
	WSBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "broadcasts_total",
		Help:      "Server frames broadcast to rooms.",
	}, []string{"type"})

	// PushDeliveries counts push transport outcomes (success, expired, error).
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "push_deliveries_total",
		Help:      "Push delivery attempts by outcome.",
	}, []string{"outcome"})
)

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
