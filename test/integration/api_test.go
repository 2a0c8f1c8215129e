package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	config "github.com/avatarctic/identity-kv/configs"
	"github.com/avatarctic/identity-kv/internal/application/services"
	"github.com/avatarctic/identity-kv/internal/infrastructure/httpserver"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/memory"
	"github.com/avatarctic/identity-kv/internal/infrastructure/ratelimit"
	"github.com/avatarctic/identity-kv/internal/infrastructure/repositories"
	"github.com/avatarctic/identity-kv/internal/utils"
	"github.com/avatarctic/identity-kv/test/mocks"
)

const (
	email       = "Grace.Hopper@Example.com"
	password    = "C0bol!Rules"
	newPassword = "Nan0second!"
)

// IdentityFlowSuite drives the whole stack in process: HTTP adapter, services,
// repositories and the in-memory store.
type IdentityFlowSuite struct {
	suite.Suite
	ts       *httptest.Server
	notifier *mocks.NotificationServiceMock
	roles    *repositories.UserRoleRepository
}

func (s *IdentityFlowSuite) SetupTest() {
	names := repositories.TableNames{Users: "Users", RefreshTokens: "RefreshTokens", EphemeralTokens: "TemporaryTokens", UserRoles: "UserRoles"}
	store := memory.New(names.Definitions()...)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	users := repositories.NewUserRepository(store, names.Users, logger)
	refresh := repositories.NewRefreshTokenRepository(store, names.RefreshTokens, logger)
	ephemeral := repositories.NewEphemeralTokenRepository(store, names.EphemeralTokens, logger)
	s.roles = repositories.NewUserRoleRepository(store, names.UserRoles, logger)
	s.notifier = &mocks.NotificationServiceMock{}

	authSvc := services.NewAuthService(services.AuthServiceDeps{
		Users:           users,
		RefreshTokens:   refresh,
		EphemeralTokens: ephemeral,
		Hasher:          utils.NewBcryptHasherWithCost(bcrypt.MinCost),
		Validator:       utils.NewPasswordValidator(utils.DefaultPasswordPolicy()),
		Notifier:        s.notifier,
	}, &config.JWTConfig{
		Secret:          "integration-secret-that-is-long-enough",
		Issuer:          "identity-kv",
		Audience:        "identity-kv-clients",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}, &config.IdentityConfig{
		SendWelcomeEmail:         true,
		RequireEmailConfirmation: true,
		EphemeralTokenTTL:        time.Hour,
	}, logger)
	adminSvc := services.NewAdminService(users, s.roles, refresh, ephemeral, logger)

	srv := httpserver.NewServer(&config.ServerConfig{Host: "127.0.0.1", Port: "0"}, logger, httpserver.ServerDeps{
		AuthService:        authSvc,
		AdminService:       adminSvc,
		RateLimiterService: ratelimit.New(ratelimit.Config{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}, logger),
	})
	s.ts = httptest.NewServer(srv.Echo())
}

func (s *IdentityFlowSuite) TearDownTest() {
	s.ts.Close()
}

func (s *IdentityFlowSuite) call(method, path string, body any, headers map[string]string, out any) int {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, r)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func bearer(t string) map[string]string { return map[string]string{"Authorization": "Bearer " + t} }

func (s *IdentityFlowSuite) login(pw string) (tokens, int) {
	var out tokens
	code := s.call(http.MethodPost, "/api/identity/login", map[string]string{"email": email, "password": pw}, nil, &out)
	return out, code
}

// registerAndConfirm returns the user id and a logged-in session.
func (s *IdentityFlowSuite) registerAndConfirm() (uuid.UUID, tokens) {
	var reg tokens
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/api/identity/register", map[string]string{"email": email, "password": password}, nil, &reg))

	_, code := s.login(password)
	s.Require().Equal(http.StatusBadRequest, code, "unconfirmed users cannot log in")

	var me map[string]string
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/api/identity/me", nil, bearer(reg.AccessToken), &me))
	s.Equal("grace.hopper@example.com", me["email"])
	userID := uuid.MustParse(me["userId"])

	s.Require().Equal(http.StatusNoContent, s.call(http.MethodPost, "/api/identity/send-confirmation-email", map[string]string{"user_id": userID.String()}, nil, nil))
	sent, ok := s.notifier.Last("email_confirmation")
	s.Require().True(ok)

	q := url.Values{"userId": {userID.String()}, "token": {sent.Token}}
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/api/identity/confirm-email?"+q.Encode(), nil, nil, nil))
	s.Equal(http.StatusBadRequest, s.call(http.MethodGet, "/api/identity/confirm-email?"+q.Encode(), nil, nil, nil), "tokens are single use")

	session, code := s.login(password)
	s.Require().Equal(http.StatusOK, code)
	return userID, session
}

func (s *IdentityFlowSuite) TestRegisterConfirmLoginRefreshLogout() {
	_, session := s.registerAndConfirm()

	_, welcomed := s.notifier.Last("welcome")
	s.True(welcomed)

	var refreshed map[string]string
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/api/identity/refresh-token", map[string]string{"refresh_token": session.RefreshToken}, nil, &refreshed))
	s.NotEmpty(refreshed["access_token"])

	headers := bearer(refreshed["access_token"])
	headers["refreshtoken"] = session.RefreshToken
	s.Equal(http.StatusNoContent, s.call(http.MethodPost, "/api/identity/logout", nil, headers, nil))
	s.Equal(http.StatusBadRequest, s.call(http.MethodPost, "/api/identity/refresh-token", map[string]string{"refresh_token": session.RefreshToken}, nil, nil))
}

func (s *IdentityFlowSuite) TestDuplicateRegistrationConflicts() {
	s.registerAndConfirm()
	s.Equal(http.StatusConflict, s.call(http.MethodPost, "/api/identity/register", map[string]string{"email": "grace.hopper@example.com", "password": password}, nil, nil))
}

func (s *IdentityFlowSuite) TestChangePassword() {
	_, session := s.registerAndConfirm()

	body := map[string]string{"old_password": password, "new_password": newPassword}
	s.Require().Equal(http.StatusNoContent, s.call(http.MethodPost, "/api/identity/change-password", body, bearer(session.AccessToken), nil))

	_, code := s.login(password)
	s.Equal(http.StatusBadRequest, code)
	_, code = s.login(newPassword)
	s.Equal(http.StatusOK, code)
}

func (s *IdentityFlowSuite) TestForgotAndResetPassword() {
	s.registerAndConfirm()

	s.Require().Equal(http.StatusNoContent, s.call(http.MethodPost, "/api/identity/forgot-password", map[string]string{"email": email}, nil, nil))
	sent, ok := s.notifier.Last("password_reset")
	s.Require().True(ok)

	weak := map[string]string{"email": email, "token": sent.Token, "new_password": "short"}
	s.Equal(http.StatusBadRequest, s.call(http.MethodPost, "/api/identity/reset-password", weak, nil, nil))

	reset := map[string]string{"email": email, "token": sent.Token, "new_password": newPassword}
	s.Require().Equal(http.StatusNoContent, s.call(http.MethodPost, "/api/identity/reset-password", reset, nil, nil))
	s.Equal(http.StatusBadRequest, s.call(http.MethodPost, "/api/identity/reset-password", reset, nil, nil), "reset tokens are single use")

	_, code := s.login(newPassword)
	s.Equal(http.StatusOK, code)
}

func (s *IdentityFlowSuite) TestAdminEndpoints() {
	userID, session := s.registerAndConfirm()

	s.Equal(http.StatusForbidden, s.call(http.MethodGet, "/api/admin/users", nil, bearer(session.AccessToken), nil))

	s.Require().NoError(s.roles.AddRole(context.Background(), userID, "admin", nil))

	var listed struct {
		Count int `json:"count"`
	}
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/api/admin/users", nil, bearer(session.AccessToken), &listed))
	s.Equal(1, listed.Count)

	var roles struct {
		Roles []string `json:"roles"`
	}
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/api/admin/users/"+userID.String()+"/roles", nil, bearer(session.AccessToken), &roles))
	s.Equal([]string{"admin"}, roles.Roles)

	s.Equal(http.StatusOK, s.call(http.MethodPost, "/api/admin/maintenance/cleanup", nil, bearer(session.AccessToken), nil))
}

func TestIdentityFlowSuite(t *testing.T) {
	suite.Run(t, new(IdentityFlowSuite))
}
