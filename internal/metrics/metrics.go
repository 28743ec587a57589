package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Presence metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_sessions_active",
			Help: "Live authenticated sessions",
		},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	RoomsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_rooms_deleted_total",
			Help: "Total rooms deleted",
		},
	)

	MembershipOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_membership_ops_total",
			Help: "Membership transitions by operation and result",
		},
		[]string{"op", "result"},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_broadcasts_total",
			Help: "Room broadcasts by event type",
		},
		[]string{"type"},
	)

	SendsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_sends_dropped_total",
			Help: "Outbound frames dropped because the connection was gone or its buffer was full",
		},
	)

	// Store metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_store_latency_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3},
		},
		[]string{"op"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_store_errors_total",
			Help: "Store operations that failed with a storage error",
		},
		[]string{"op"},
	)

	StoreFallback = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_store_fallback",
			Help: "1 when the in-memory fallback store is active",
		},
	)
)

// Result turns an error into a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
