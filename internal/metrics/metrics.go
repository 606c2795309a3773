// Package metrics holds the process-wide Prometheus collectors.
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
	// Call starts partitioned by flow and result (ok or an apperr code).
	CallsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_calls_started_total",
			Help: "Outbound call initiations by flow and result",
		},
		[]string{"flow", "result"},
	)

	// Provider webhook events by type and handling result.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_webhook_events_total",
			Help: "Provider call events received by type and handling result",
		},
		[]string{"type", "result"},
	)

	SecondLegDials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_second_leg_dials_total",
			Help: "Dials of the other party after the first leg answered",
		},
		[]string{"flow", "result"},
	)

	DialerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_dialer_outcomes_total",
			Help: "Power dialer queue item outcomes",
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Middleware records request metrics. The matched route template is used as the label
// to keep cardinality low.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
