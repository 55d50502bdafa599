package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request handling time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Number of active commerce channel connections",
		},
	)

	commerceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commerce_events_total",
			Help: "Commerce events broadcast to rooms, by event type",
		},
		[]string{"event"},
	)

	bidsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bids_rejected_total",
			Help: "Bids rejected by the authoritative fold",
		},
	)
)

// RecordHTTPMetrics records counters and latency for one HTTP request.
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func RecordCommerceEvent(event string) {
	commerceEventsTotal.WithLabelValues(event).Inc()
}

func RecordBidRejected() {
	bidsRejectedTotal.Inc()
}
