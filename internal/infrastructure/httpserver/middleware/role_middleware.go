package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/identity-kv/internal/core/apperror"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/httpserver/helpers"
)

// AdminRole is the role required by the maintenance endpoints.
const AdminRole = "admin"

type RoleMiddleware struct {
	adminService ports.AdminService
	logger       *logrus.Logger
}

func NewRoleMiddleware(adminService ports.AdminService, logger *logrus.Logger) *RoleMiddleware {
	return &RoleMiddleware{adminService: adminService, logger: logger}
}

// RequireRole must run after RequireJWT. Roles are read from the store on
// every request, so revocations apply immediately.
func (r *RoleMiddleware) RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := helpers.GetUserIDFromContext(c)
			if err != nil {
				return err
			}
			ok, err := r.adminService.HasRole(c.Request().Context(), userID, role)
			if err != nil {
				return err
			}
			if !ok {
				if r.logger != nil {
					r.logger.WithFields(logrus.Fields{"user_id": userID, "role": role, "path": c.Request().URL.Path}).Warn("role check failed")
				}
				return apperror.ErrInsufficientRole
			}
			return next(c)
		}
	}
}
