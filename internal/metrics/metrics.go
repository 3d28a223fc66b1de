package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockedin_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lockedin_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// LockTransitionsTotal counts lock operations; result is "ok" or an error code.
	LockTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockedin_lock_transitions_total",
		Help: "Recovery lock operations by operation and result.",
	}, []string{"op", "result"})

	UnlockRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockedin_unlock_rate_limited_total",
		Help: "Unlock requests rejected by the rate limiter.",
	})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lockedin_websocket_connections",
		Help: "Open websocket connections.",
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockedin_events_published_total",
		Help: "Events handed to notification sinks by sink and result.",
	}, []string{"sink", "result"})
)
