package httpserver

import (
	"github.com/avatarctic/identity-kv/internal/core/ports"
	customMiddleware "github.com/avatarctic/identity-kv/internal/infrastructure/httpserver/middleware"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/identity-kv/configs"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "identity-kv"

type ServerDeps struct {
	AuthService        ports.AuthService
	AdminService       ports.AdminService
	RateLimiterService ports.RateLimiterService
	HealthCheckers     []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *configs.ServerConfig
	logger         *logrus.Logger
	authSvc        ports.AuthService
	adminSvc       ports.AdminService
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *configs.ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{}

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		authSvc:        deps.AuthService,
		adminSvc:       deps.AdminService,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.AuthService,
			deps.AdminService,
			deps.RateLimiterService,
			logger,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}
	e.HTTPErrorHandler = server.handleError

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
