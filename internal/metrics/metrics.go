package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "occupancy_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "occupancy_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	OccupancyUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "occupancy_updates_total",
			Help: "Occupancy upserts by result (created, updated, rejected, error)",
		},
		[]string{"result"},
	)

	IngestReadings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "occupancy_ingest_readings_total",
			Help: "Readings pulled from the upstream feed by result",
		},
		[]string{"result"},
	)

	ResponseCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "occupancy_response_cache_total",
			Help: "Response cache lookups and invalidations",
		},
		[]string{"result"}, // hit, miss, raced, invalidated
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route, status string, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
