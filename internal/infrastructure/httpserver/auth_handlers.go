package httpserver

import (
	"net/http"
	"strings"

	"github.com/avatarctic/identity-kv/internal/core/domain/auth"
	"github.com/avatarctic/identity-kv/internal/infrastructure/httpserver/helpers"
	"github.com/labstack/echo/v4"
)

// bindAndValidate decodes the JSON body into req and runs its rules.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

func (s *Server) register(c echo.Context) error {
	var req auth.RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	tokens, err := s.authSvc.Register(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}

func (s *Server) login(c echo.Context) error {
	var req auth.LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	tokens, err := s.authSvc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}

func (s *Server) refreshToken(c echo.Context) error {
	var req auth.RefreshTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	accessToken, err := s.authSvc.RefreshAccessToken(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"access_token": accessToken})
}

func (s *Server) logout(c echo.Context) error {
	refreshToken, err := helpers.GetRefreshTokenFromHeader(c)
	if err != nil {
		return err
	}
	if err := s.authSvc.Logout(c.Request().Context(), refreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) changePassword(c echo.Context) error {
	userID, err := helpers.GetUserIDFromContext(c)
	if err != nil {
		return err
	}
	var req auth.ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := s.authSvc.ChangePassword(c.Request().Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) sendConfirmationEmail(c echo.Context) error {
	var req auth.SendConfirmationEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := s.authSvc.SendConfirmationEmail(c.Request().Context(), req.UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// confirmEmail is the target of the link in the confirmation email.
func (s *Server) confirmEmail(c echo.Context) error {
	userID, err := helpers.ParseUUIDParam(c.QueryParam("userId"), "userId")
	if err != nil {
		return err
	}
	token := strings.TrimSpace(c.QueryParam("token"))
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	if err := s.authSvc.ConfirmEmail(c.Request().Context(), userID, token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Email confirmed successfully"})
}

func (s *Server) forgotPassword(c echo.Context) error {
	var req auth.ForgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := s.authSvc.GeneratePasswordResetToken(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) resetPassword(c echo.Context) error {
	var req auth.ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := s.authSvc.ResetPassword(c.Request().Context(), req.Email, req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// me echoes the identity carried by the access token without a store read.
func (s *Server) me(c echo.Context) error {
	userID, err := helpers.GetUserIDFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"userId": userID.String(),
		"email":  strings.ToLower(helpers.UserEmail(c)),
	})
}
