package helpers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Keys under which the JWT middleware stores the authenticated principal.
const (
	principalIDKey    = "identity.user_id"
	principalEmailKey = "identity.user_email"
)

func SetUserID(c echo.Context, id uuid.UUID) { c.Set(principalIDKey, id) }

func SetUserEmail(c echo.Context, email string) { c.Set(principalEmailKey, email) }

func lookupUserID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(principalIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func lookupUserEmail(c echo.Context) (string, bool) {
	email, ok := c.Get(principalEmailKey).(string)
	return email, ok && email != ""
}
