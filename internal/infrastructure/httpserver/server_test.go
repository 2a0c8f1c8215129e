package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/identity-kv/configs"
	"github.com/avatarctic/identity-kv/internal/core/apperror"
	"github.com/avatarctic/identity-kv/internal/core/domain/auth"
	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/httpserver"
	"github.com/avatarctic/identity-kv/test/mocks"
)

var (
	aliceID = uuid.MustParse("6f1c2a4e-7d1b-4f55-9a0e-2b9d7f1e0c11")
	adminID = uuid.MustParse("0b7e3d52-1c8a-4e2f-8d6b-5a4c3e2f1d00")
)

type testServer struct {
	ts      *httptest.Server
	auth    *mocks.AuthServiceMock
	admin   *mocks.AdminServiceMock
	limiter *mocks.RateLimiterServiceMock
}

func newTestServer(t *testing.T, checkers ...ports.HealthChecker) *testServer {
	t.Helper()
	authMock := &mocks.AuthServiceMock{}
	authMock.ValidateTokenFn = func(ctx context.Context, token string) (*auth.Claims, error) {
		switch token {
		case "alice-token":
			return &auth.Claims{UserID: aliceID, Email: "Alice@Example.com"}, nil
		case "admin-token":
			return &auth.Claims{UserID: adminID, Email: "admin@example.com"}, nil
		}
		return nil, apperror.ErrInvalidAccessToken
	}
	adminMock := &mocks.AdminServiceMock{}
	adminMock.HasRoleFn = func(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
		return userID == adminID && role == "admin", nil
	}
	limiter := &mocks.RateLimiterServiceMock{}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := httpserver.NewServer(&configs.ServerConfig{Host: "127.0.0.1", Port: "0", ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}, logger, httpserver.ServerDeps{
		AuthService:        authMock,
		AdminService:       adminMock,
		RateLimiterService: limiter,
		HealthCheckers:     checkers,
	})
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return &testServer{ts: ts, auth: authMock, admin: adminMock, limiter: limiter}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeProblem(t *testing.T, body []byte) httpserver.ProblemDetails {
	t.Helper()
	var p httpserver.ProblemDetails
	require.NoError(t, json.Unmarshal(body, &p))
	return p
}

func TestLoginAndRegister(t *testing.T) {
	s := newTestServer(t)
	s.auth.LoginFn = func(ctx context.Context, email, password string) (*auth.AuthTokens, error) {
		if password != "Secret1!" {
			return nil, apperror.ErrInvalidCredentials
		}
		return &auth.AuthTokens{AccessToken: "access-x", RefreshToken: "refresh-x", ExpiresIn: 3600}, nil
	}
	var registered *auth.RegisterRequest
	s.auth.RegisterFn = func(ctx context.Context, req *auth.RegisterRequest) (*auth.AuthTokens, error) {
		registered = req
		return &auth.AuthTokens{AccessToken: "access-r", RefreshToken: "refresh-r", ExpiresIn: 3600}, nil
	}

	resp, body := s.do(t, http.MethodPost, "/api/identity/login", map[string]string{"email": "a@example.com", "password": "Secret1!"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens auth.AuthTokens
	require.NoError(t, json.Unmarshal(body, &tokens))
	assert.Equal(t, "access-x", tokens.AccessToken)
	assert.Equal(t, "refresh-x", tokens.RefreshToken)

	resp, body = s.do(t, http.MethodPost, "/api/identity/login", map[string]string{"email": "a@example.com", "password": "nope"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get(echo.HeaderContentType))
	p := decodeProblem(t, body)
	assert.Equal(t, "User.InvalidPassword", p.Title)
	assert.Equal(t, "/api/identity/login", p.Instance)

	resp, body = s.do(t, http.MethodPost, "/api/identity/register", map[string]any{"email": "new@example.com", "password": "Secret1!", "first_name": "Ada"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, registered)
	assert.Equal(t, "new@example.com", registered.Email)
	require.NotNil(t, registered.FirstName)
	assert.Equal(t, "Ada", *registered.FirstName)
	require.NoError(t, json.Unmarshal(body, &tokens))
	assert.Equal(t, "access-r", tokens.AccessToken)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	called := false
	s.auth.LoginFn = func(ctx context.Context, email, password string) (*auth.AuthTokens, error) {
		called = true
		return nil, nil
	}

	resp, body := s.do(t, http.MethodPost, "/api/identity/login", map[string]string{"email": "not-an-email"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, called)
	p := decodeProblem(t, body)
	assert.Equal(t, "Request.Invalid", p.Title)
	require.Len(t, p.Errors, 2)
	assert.Contains(t, p.Errors[0].Description, "email")
	assert.Contains(t, p.Errors[1].Description, "password")

	resp, _ = s.do(t, http.MethodPost, "/api/identity/send-confirmation-email", map[string]string{"user_id": uuid.Nil.String()}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		title  string
	}{
		{"validation", apperror.InvalidPassword([]string{"too short", "needs a digit"}), http.StatusBadRequest, "User.InvalidPassword"},
		{"problem", apperror.ErrInvalidResetToken, http.StatusBadRequest, "Reset.InvalidToken"},
		{"not found", apperror.ErrUserNotFound, http.StatusNotFound, "User.NotFound"},
		{"conflict", apperror.ErrUserAlreadyExists, http.StatusConflict, "User.AlreadyExists"},
		{"store fault", errors.New("dial tcp: connection refused"), http.StatusInternalServerError, "Server failure"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.auth.ResetPasswordFn = func(ctx context.Context, email, token, newPassword string) error { return tc.err }

			resp, body := s.do(t, http.MethodPost, "/api/identity/reset-password", map[string]string{"email": "a@example.com", "token": "t", "new_password": "x"}, nil)
			require.Equal(t, tc.status, resp.StatusCode)
			p := decodeProblem(t, body)
			assert.Equal(t, tc.title, p.Title)
			assert.Equal(t, tc.status, p.Status)
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, p.Detail, "connection refused")
			}
		})
	}

	t.Run("validation errors are listed", func(t *testing.T) {
		s := newTestServer(t)
		s.auth.ResetPasswordFn = func(ctx context.Context, email, token, newPassword string) error {
			return apperror.InvalidPassword([]string{"too short", "needs a digit"})
		}
		_, body := s.do(t, http.MethodPost, "/api/identity/reset-password", map[string]string{"email": "a@example.com", "token": "t", "new_password": "x"}, nil)
		p := decodeProblem(t, body)
		require.Len(t, p.Errors, 2)
		assert.Equal(t, "too short", p.Errors[0].Description)
		assert.Equal(t, apperror.Validation, p.Errors[0].Type)
	})
}

func TestRefreshToken(t *testing.T) {
	s := newTestServer(t)
	s.auth.RefreshAccessTokenFn = func(ctx context.Context, refreshToken string) (string, error) {
		if refreshToken != "refresh-x" {
			return "", apperror.ErrInvalidRefreshToken
		}
		return "access-y", nil
	}

	resp, body := s.do(t, http.MethodPost, "/api/identity/refresh-token", map[string]string{"refresh_token": "refresh-x"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "access-y", out["access_token"])

	resp, _ = s.do(t, http.MethodPost, "/api/identity/refresh-token", map[string]string{"refresh_token": "stale"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	var revoked string
	s.auth.LogoutFn = func(ctx context.Context, refreshToken string) error {
		revoked = refreshToken
		return nil
	}

	resp, _ := s.do(t, http.MethodPost, "/api/identity/logout", nil, map[string]string{"refreshtoken": "refresh-x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "bearer token is required")

	headers := bearer("alice-token")
	resp, _ = s.do(t, http.MethodPost, "/api/identity/logout", nil, headers)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "refresh token header is required")

	headers["refreshtoken"] = "refresh-x"
	resp, _ = s.do(t, http.MethodPost, "/api/identity/logout", nil, headers)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "refresh-x", revoked)
}

func TestChangePasswordUsesTokenIdentity(t *testing.T) {
	s := newTestServer(t)
	var gotID uuid.UUID
	s.auth.ChangePasswordFn = func(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
		gotID = userID
		return nil
	}

	resp, body := s.do(t, http.MethodPost, "/api/identity/change-password", map[string]string{"old_password": "a", "new_password": "b"}, bearer("forged"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authentication Error", decodeProblem(t, body).Title)

	resp, _ = s.do(t, http.MethodPost, "/api/identity/change-password", map[string]string{"old_password": "a", "new_password": "b"}, bearer("alice-token"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, aliceID, gotID)
}

func TestConfirmEmail(t *testing.T) {
	s := newTestServer(t)
	s.auth.ConfirmEmailFn = func(ctx context.Context, userID uuid.UUID, token string) error {
		if userID != aliceID || token != "tok" {
			return apperror.ErrInvalidEmailToken
		}
		return nil
	}

	resp, _ := s.do(t, http.MethodGet, "/api/identity/confirm-email?userId="+aliceID.String()+"&token=tok", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/api/identity/confirm-email?userId="+aliceID.String()+"&token=bad", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email.InvalidToken", decodeProblem(t, body).Title)

	resp, _ = s.do(t, http.MethodGet, "/api/identity/confirm-email?userId=nope&token=tok", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPasswordResetEndpoints(t *testing.T) {
	s := newTestServer(t)
	var requested string
	s.auth.GeneratePasswordResetTokenFn = func(ctx context.Context, email string) error {
		requested = email
		return nil
	}
	sentTo := uuid.Nil
	s.auth.SendConfirmationEmailFn = func(ctx context.Context, userID uuid.UUID) error {
		sentTo = userID
		return nil
	}

	resp, _ := s.do(t, http.MethodPost, "/api/identity/forgot-password", map[string]string{"email": "a@example.com"}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "a@example.com", requested)

	resp, _ = s.do(t, http.MethodPost, "/api/identity/send-confirmation-email", map[string]string{"user_id": aliceID.String()}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, aliceID, sentTo)
}

func TestMe(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/api/identity/me", nil, bearer("alice-token"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, aliceID.String(), out["userId"])
	assert.Equal(t, "alice@example.com", out["email"])

	resp, _ = s.do(t, http.MethodGet, "/api/identity/me", nil, map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	s := newTestServer(t)
	s.admin.ListUsersFn = func(ctx context.Context, limit int) ([]*user.User, error) {
		return []*user.User{{ID: aliceID, Email: "alice@example.com"}}, nil
	}
	var assigned struct {
		user, role string
		by         uuid.UUID
	}
	s.admin.AssignRoleFn = func(ctx context.Context, userID uuid.UUID, role string, assignedBy uuid.UUID) error {
		assigned.user, assigned.role, assigned.by = userID.String(), role, assignedBy
		return nil
	}
	s.admin.RemoveRoleFn = func(ctx context.Context, userID uuid.UUID, role string) error {
		return apperror.ErrRoleAssignmentMissing
	}
	s.admin.CleanupExpiredTokensFn = func(ctx context.Context) (*ports.CleanupReport, error) {
		return &ports.CleanupReport{RefreshTokens: 2, EphemeralTokens: 3}, nil
	}

	resp, _ := s.do(t, http.MethodGet, "/api/admin/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/api/admin/users", nil, bearer("alice-token"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Authorization Error", decodeProblem(t, body).Title)

	resp, body = s.do(t, http.MethodGet, "/api/admin/users?limit=10", nil, bearer("admin-token"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "alice@example.com")
	assert.NotContains(t, string(body), "password")

	resp, _ = s.do(t, http.MethodGet, "/api/admin/users?limit=0", nil, bearer("admin-token"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/admin/users/"+aliceID.String()+"/roles", map[string]string{"role": "auditor"}, bearer("admin-token"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, aliceID.String(), assigned.user)
	assert.Equal(t, "auditor", assigned.role)
	assert.Equal(t, adminID, assigned.by)

	resp, _ = s.do(t, http.MethodDelete, "/api/admin/users/"+aliceID.String()+"/roles/auditor", nil, bearer("admin-token"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/api/admin/maintenance/cleanup", nil, bearer("admin-token"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report ports.CleanupReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 2, report.RefreshTokens)
	assert.Equal(t, 3, report.EphemeralTokens)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t)
	reset := time.Now().Add(30 * time.Second)
	s.limiter.AllowFn = func(ctx context.Context, key string) (bool, int, int, time.Time, error) {
		return false, 0, 5, reset, nil
	}

	resp, _ := s.do(t, http.MethodPost, "/api/identity/forgot-password", map[string]string{"email": "a@example.com"}, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is not rate limited")

	s.limiter.AllowFn = func(ctx context.Context, key string) (bool, int, int, time.Time, error) {
		return true, 0, 5, reset, errors.New("redis down")
	}
	resp, _ = s.do(t, http.MethodPost, "/api/identity/forgot-password", map[string]string{"email": "a@example.com"}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "limiter errors fail open")
}

type stubChecker struct {
	name string
	err  error
}

func (c stubChecker) Name() string                    { return c.name }
func (c stubChecker) Check(ctx context.Context) error { return c.err }

func TestHealth(t *testing.T) {
	s := newTestServer(t, stubChecker{name: "store"})
	resp, body := s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"service":"identity-kv"`)

	s = newTestServer(t, stubChecker{name: "store"}, stubChecker{name: "redis", err: errors.New("timeout")})
	resp, body = s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"redis":"unhealthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodGet, "/health", nil, nil)

	resp, body := s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "identity_http_requests_total")
}
