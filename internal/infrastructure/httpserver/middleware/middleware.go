package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/identity-kv/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	JWT       *JWTMiddleware
	Role      *RoleMiddleware
	Logging   *LoggingMiddleware
	RateLimit *RateLimitMiddleware
	Metrics   *MetricsMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	authService ports.AuthService,
	adminService ports.AdminService,
	rateLimiterService ports.RateLimiterService,
	logger *logrus.Logger,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		JWT:       NewJWTMiddleware(authService, logger),
		Role:      NewRoleMiddleware(adminService, logger),
		Logging:   NewLoggingMiddleware(logger),
		RateLimit: NewRateLimitMiddleware(rateLimiterService, logger),
		Metrics:   NewMetricsMiddleware(requestsTotal, requestDuration),
	}
}
