package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/httpserver/helpers"
)

type JWTMiddleware struct {
	authService ports.AuthService
	logger      *logrus.Logger
}

func NewJWTMiddleware(authService ports.AuthService, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{authService: authService, logger: logger}
}

// RequireJWT validates the bearer access token and puts its identity on the
// request context.
func (m *JWTMiddleware) RequireJWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := helpers.GetJWTTokenFromContext(c)
			if err != nil {
				return err
			}

			claims, err := m.authService.ValidateToken(c.Request().Context(), tokenString)
			if err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path}).WithError(err).Warn("JWT validation failed")
				}
				return err
			}

			helpers.SetUserID(c, claims.UserID)
			helpers.SetUserEmail(c, claims.Email)

			if m.logger != nil {
				m.logger.WithFields(logrus.Fields{"user_id": claims.UserID}).Debug("jwt validated and user context set")
			}
			return next(c)
		}
	}
}
