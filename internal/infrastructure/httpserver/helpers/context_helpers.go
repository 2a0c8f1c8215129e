package helpers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RefreshTokenHeader carries the refresh token on logout.
const RefreshTokenHeader = "refreshtoken"

func GetUserIDFromContext(c echo.Context) (uuid.UUID, error) {
	id, ok := lookupUserID(c)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid user context")
	}
	return id, nil
}

// UserEmail returns the authenticated email, or "" when the token carried none.
func UserEmail(c echo.Context) string {
	email, _ := lookupUserEmail(c)
	return email
}

func GetJWTTokenFromContext(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}
	return token, nil
}

// GetRefreshTokenFromHeader reads the refresh token sent on logout.
func GetRefreshTokenFromHeader(c echo.Context) (string, error) {
	token := strings.TrimSpace(c.Request().Header.Get(RefreshTokenHeader))
	if token == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Refresh token is required.")
	}
	return token, nil
}

// ParseUUIDParam parses a path or query value as a UUID.
func ParseUUIDParam(value, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
