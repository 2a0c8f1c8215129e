package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Start blocks until the server stops. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.LogMetricsInitialization()

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	server := &http.Server{
		Addr:         addr,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	fields := logrus.Fields{"addr": addr, "environment": s.config.Environment}
	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		s.logger.WithFields(fields).Info("starting HTTPS server")
		return s.echo.StartTLS(addr, s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	s.logger.WithFields(fields).Info("starting HTTP server")
	s.logger.Warn("Running in HTTP mode - TLS certificates not configured")
	return s.echo.StartServer(server)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
