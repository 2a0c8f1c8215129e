package httpserver

import (
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: s.allowedOrigins()}))
	s.echo.Use(middleware.RequestID())

	s.echo.Use(s.middleware.Metrics.CollectHTTPMetrics())
	s.echo.Use(s.middleware.Logging.RequestLogging())
}

func (s *Server) allowedOrigins() []string {
	if s.config == nil || len(s.config.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.config.AllowedOrigins
}
