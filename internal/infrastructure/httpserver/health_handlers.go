package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
)

type healthReport struct {
	Status       string            `json:"status"`
	Timestamp    string            `json:"timestamp"`
	Service      string            `json:"service"`
	Dependencies map[string]string `json:"dependencies"`
}

// healthCheck probes every configured dependency. A single failing probe
// degrades the report and turns the answer into a 503.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	report := healthReport{
		Status:       statusHealthy,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Service:      ServiceName,
		Dependencies: make(map[string]string, len(s.healthCheckers)),
	}
	for _, hc := range s.healthCheckers {
		if hc == nil {
			continue
		}
		err := hc.Check(ctx)
		if err == nil {
			report.Dependencies[hc.Name()] = statusHealthy
			continue
		}
		report.Dependencies[hc.Name()] = statusUnhealthy
		report.Status = statusDegraded
		if s.logger != nil {
			s.logger.WithField("dependency", hc.Name()).WithError(err).Warn("health check failed")
		}
	}

	if report.Status != statusHealthy {
		return c.JSON(http.StatusServiceUnavailable, report)
	}
	return c.JSON(http.StatusOK, report)
}
