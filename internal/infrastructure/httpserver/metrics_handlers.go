package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const metricsNamespace = "identity"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "The total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "The HTTP request latencies in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
}

// GetRequestsTotal returns the requests total metric for middleware use
func GetRequestsTotal() *prometheus.CounterVec {
	return requestsTotal
}

// GetRequestDuration returns the request duration metric for middleware use
func GetRequestDuration() *prometheus.HistogramVec {
	return requestDuration
}

// LogMetricsInitialization logs that metrics have been initialized
func (s *Server) LogMetricsInitialization() {
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"namespace":        metricsNamespace,
			"metrics_endpoint": "/metrics",
		}).Info("Prometheus metrics registered")
	}
}

func (s *Server) metricsEndpoint(c echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
