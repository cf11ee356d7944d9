// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sesportal_login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sesportal_gate_decisions_total",
			Help: "Gatekeeper admission decisions by check and reason.",
		},
		[]string{"check", "reason"},
	)

	CSRFValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sesportal_csrf_validations_total",
			Help: "CSRF token validations by scope kind and outcome.",
		},
		[]string{"scope", "outcome"},
	)

	SessionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sesportal_sessions_swept_total",
		Help: "Stale session rows removed by the sweeper.",
	})

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sesportal_sessions_ended_total",
			Help: "Sessions torn down by reason.",
		},
		[]string{"reason"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sesportal_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(LoginAttempts, GateDecisions, CSRFValidations,
			SessionsSwept, SessionsEnded, httpRequestDuration)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request latency per matched route.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
