package httpserver

import (
	"net/http"
	"strconv"

	"github.com/avatarctic/identity-kv/internal/core/domain/auth"
	"github.com/avatarctic/identity-kv/internal/infrastructure/httpserver/helpers"
	"github.com/labstack/echo/v4"
)

const maxListLimit = 1000

func (s *Server) listUsers(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 1000")
		}
		limit = n
	}
	users, err := s.adminSvc.ListUsers(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}

func (s *Server) getUserRoles(c echo.Context) error {
	userID, err := helpers.ParseUUIDParam(c.Param("id"), "user id")
	if err != nil {
		return err
	}
	roles, err := s.adminSvc.GetRoles(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"user_id": userID, "roles": roles})
}

func (s *Server) assignRole(c echo.Context) error {
	userID, err := helpers.ParseUUIDParam(c.Param("id"), "user id")
	if err != nil {
		return err
	}
	actorID, err := helpers.GetUserIDFromContext(c)
	if err != nil {
		return err
	}
	var req auth.AssignRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := s.adminSvc.AssignRole(c.Request().Context(), userID, req.Role, actorID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) removeRole(c echo.Context) error {
	userID, err := helpers.ParseUUIDParam(c.Param("id"), "user id")
	if err != nil {
		return err
	}
	if err := s.adminSvc.RemoveRole(c.Request().Context(), userID, c.Param("role")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) cleanupTokens(c echo.Context) error {
	report, err := s.adminSvc.CleanupExpiredTokens(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
