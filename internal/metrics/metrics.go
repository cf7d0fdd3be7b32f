package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ReasonParse         = "parse"
	ReasonExpired       = "expired"
	ReasonNoSuchUser    = "no_such_user"
	ReasonStaleRevision = "stale_revision"
	ReasonBanned        = "banned"
	ReasonMissingBearer = "missing_bearer"
)

var (
	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "users_tokens_issued_total",
			Help: "Signed tokens issued, by kind.",
		},
		[]string{"kind"},
	)

	TokenRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "users_token_rejections_total",
			Help: "Presented tokens rejected, by reason.",
		},
		[]string{"reason"},
	)

	PermissionDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "users_permission_denials_total",
			Help: "Requests rejected by the permission gate, by action.",
		},
		[]string{"action"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Register adds every collector to reg. main passes prometheus.DefaultRegisterer.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		TokensIssued, TokenRejections, PermissionDenials,
		httpInFlight, httpRequestsTotal, httpRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records count and latency per route template, not per raw URL.
func Instrument() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			labels := []string{c.Request().Method, path, strconv.Itoa(status)}
			httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(labels...).Inc()
			return err
		}
	}
}
