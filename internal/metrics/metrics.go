// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "learntrack_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	ProgressConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learntrack_progress_version_conflicts_total",
			Help: "Playlist writes that lost a version check and re-read",
		},
	)

	ProctoringVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntrack_proctoring_verdicts_total",
			Help: "Recorded proctoring verdicts by severity",
		},
		[]string{"severity"},
	)

	HeartbeatsRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learntrack_heartbeats_requeued_total",
			Help: "Heartbeats pushed back onto the queue after a failed apply",
		},
	)

	TelemetryRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntrack_telemetry_rate_limited_total",
			Help: "Telemetry reports rejected by the per-learner rate limit",
		},
		[]string{"transport"},
	)
)

// Middleware observes request latency. Unmatched routes share one label so
// scanners cannot blow up the series count.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
