package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avatarctic/identity-kv/internal/core/apperror"
)

// MetricsMiddleware holds the Prometheus metrics
type MetricsMiddleware struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetricsMiddleware creates a new metrics middleware instance
func NewMetricsMiddleware(requestsTotal *prometheus.CounterVec, requestDuration *prometheus.HistogramVec) *MetricsMiddleware {
	return &MetricsMiddleware{
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
	}
}

// CollectHTTPMetrics records one sample per request. Errors have not been
// rendered yet when the handler returns, so their status is derived here.
func (m *MetricsMiddleware) CollectHTTPMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			method := c.Request().Method
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = StatusFor(err)
			}

			m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// StatusFor maps an error returned by a handler to its response status.
func StatusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if appErr, ok := apperror.From(err); ok {
		switch appErr.Type {
		case apperror.Validation, apperror.Problem:
			return http.StatusBadRequest
		case apperror.NotFound:
			return http.StatusNotFound
		case apperror.Conflict:
			return http.StatusConflict
		case apperror.Authentication:
			return http.StatusUnauthorized
		case apperror.Authorization:
			return http.StatusForbidden
		}
	}
	return http.StatusInternalServerError
}
