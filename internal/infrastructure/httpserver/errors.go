package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/identity-kv/internal/core/apperror"
	customMiddleware "github.com/avatarctic/identity-kv/internal/infrastructure/httpserver/middleware"
)

// ProblemDetails is an RFC 7807 response body.
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	TraceID  string            `json:"traceId,omitempty"`
	Errors   []*apperror.Error `json:"errors,omitempty"`
}

var problemTypes = map[int]string{
	http.StatusBadRequest:          "https://tools.ietf.org/html/rfc7231#section-6.5.1",
	http.StatusUnauthorized:        "https://tools.ietf.org/html/rfc7235#section-3.1",
	http.StatusForbidden:           "https://tools.ietf.org/html/rfc7231#section-6.5.3",
	http.StatusNotFound:            "https://tools.ietf.org/html/rfc7231#section-6.5.4",
	http.StatusConflict:            "https://tools.ietf.org/html/rfc7231#section-6.5.8",
	http.StatusTooManyRequests:     "https://tools.ietf.org/html/rfc6585#section-4",
	http.StatusInternalServerError: "https://tools.ietf.org/html/rfc7231#section-6.6.1",
}

func problemFor(err error) ProblemDetails {
	status := customMiddleware.StatusFor(err)
	p := ProblemDetails{Type: problemTypes[status], Status: status}
	if p.Type == "" {
		p.Type = "about:blank"
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		p.Title = http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			p.Detail = msg
		}
		return p
	}

	appErr, ok := apperror.From(err)
	if !ok {
		p.Title = "Server failure"
		p.Detail = "An unexpected error occurred"
		return p
	}
	switch appErr.Type {
	case apperror.Authentication:
		p.Title = "Authentication Error"
	case apperror.Authorization:
		p.Title = "Authorization Error"
	default:
		p.Title = appErr.Code
		p.Detail = appErr.Description
	}
	if appErr.Type == apperror.Validation {
		p.Errors = appErr.Errors
	}
	return p
}

// handleError renders every handler error as a problem response. Errors that
// are not business outcomes are logged and hidden behind a 500.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	p := problemFor(err)
	p.Instance = c.Request().URL.Path
	p.TraceID = c.Response().Header().Get(echo.HeaderXRequestID)

	if p.Status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"method": c.Request().Method, "path": c.Request().URL.Path, "request_id": p.TraceID}).WithError(err).Error("request failed")
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(p.Status)
	} else {
		writeErr = c.JSON(p.Status, p)
	}
	if writeErr != nil && s.logger != nil {
		s.logger.WithError(writeErr).Error("failed to write error response")
	}
}
