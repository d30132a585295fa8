package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskboard"

var (
	// HTTPRequestsTotal counts served requests per service, route, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "route", "method", "status"},
	)

	// HTTPRequestDuration observes request latency per service and route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"service", "route"},
	)

	// GatewayRejectionsTotal counts requests the edge router refused, by reason.
	GatewayRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "rejections_total",
			Help:      "Requests rejected by the edge router",
		},
		[]string{"reason"},
	)

	// EventsPublishedTotal counts events handed to the broadcast hub, by type.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published to the broadcast hub",
		},
		[]string{"type"},
	)

	// EventsDroppedTotal counts events lost to a full subscriber buffer, by overflow policy.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full",
		},
		[]string{"policy"},
	)

	// EventSubscribers tracks currently attached subscribers.
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Current number of event stream subscribers",
		},
	)
)
