package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// NewMetrics creates metrics middleware recording the requests to the server
// with the given name.
func NewMetrics(server string, registry *prometheus.Registry) gin.HandlerFunc {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Subsystem: server,
			Name:      "http_requests_total",
			Help:      "HTTP requests.",
		},
		[]string{"status", "method", "route"},
	)
	requestLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "murmur",
			Subsystem: server,
			Name:      "http_request_latency_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"status", "method", "route"},
	)

	registry.MustRegister(requests)
	registry.MustRegister(requestLatency)

	return func(c *gin.Context) {
		start := time.Now()

		// Process request.
		c.Next()

		// Use the route rather than the path to bound cardinality.
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		labels := prometheus.Labels{
			"status": strconv.Itoa(c.Writer.Status()),
			"method": c.Request.Method,
			"route":  route,
		}
		requests.With(labels).Inc()
		requestLatency.With(labels).Observe(time.Since(start).Seconds())
	}
}
