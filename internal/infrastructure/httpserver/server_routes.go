package httpserver

import (
	customMiddleware "github.com/avatarctic/identity-kv/internal/infrastructure/httpserver/middleware"
)

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	identity := s.echo.Group("/api/identity")
	identity.Use(s.middleware.RateLimit.Handler())

	identity.POST("/register", s.register)
	identity.POST("/login", s.login)
	identity.POST("/refresh-token", s.refreshToken)
	identity.POST("/send-confirmation-email", s.sendConfirmationEmail)
	identity.GET("/confirm-email", s.confirmEmail)
	identity.POST("/forgot-password", s.forgotPassword)
	identity.POST("/reset-password", s.resetPassword)

	protected := identity.Group("", s.middleware.JWT.RequireJWT())
	protected.POST("/logout", s.logout)
	protected.POST("/change-password", s.changePassword)
	protected.GET("/me", s.me)

	admin := s.echo.Group("/api/admin",
		s.middleware.JWT.RequireJWT(),
		s.middleware.Role.RequireRole(customMiddleware.AdminRole),
	)
	admin.GET("/users", s.listUsers)
	admin.GET("/users/:id/roles", s.getUserRoles)
	admin.POST("/users/:id/roles", s.assignRole)
	admin.DELETE("/users/:id/roles/:role", s.removeRole)
	admin.POST("/maintenance/cleanup", s.cleanupTokens)
}
