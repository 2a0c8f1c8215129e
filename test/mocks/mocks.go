package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/identity-kv/internal/core/domain/auth"
	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/google/uuid"
)

// Notification is one message captured by NotificationServiceMock.
type Notification struct {
	Kind   string
	UserID uuid.UUID
	Email  string
	Token  string
}

// NotificationServiceMock records every notification. Err, when set, is
// returned from every method after recording.
type NotificationServiceMock struct {
	Err error

	mu   sync.Mutex
	sent []Notification
}

var _ ports.NotificationService = (*NotificationServiceMock)(nil)

func (m *NotificationServiceMock) record(n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.Err
}

func (m *NotificationServiceMock) SendEmailConfirmation(ctx context.Context, userID uuid.UUID, email, token string) error {
	return m.record(Notification{Kind: "email_confirmation", UserID: userID, Email: email, Token: token})
}
func (m *NotificationServiceMock) SendPasswordReset(ctx context.Context, userID uuid.UUID, email, token string) error {
	return m.record(Notification{Kind: "password_reset", UserID: userID, Email: email, Token: token})
}
func (m *NotificationServiceMock) SendPasswordChanged(ctx context.Context, userID uuid.UUID, email string) error {
	return m.record(Notification{Kind: "password_changed", UserID: userID, Email: email})
}
func (m *NotificationServiceMock) SendWelcome(ctx context.Context, userID uuid.UUID, email string) error {
	return m.record(Notification{Kind: "welcome", UserID: userID, Email: email})
}

// Sent returns a copy of the recorded notifications.
func (m *NotificationServiceMock) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}

// Last returns the most recent notification of kind.
func (m *NotificationServiceMock) Last(kind string) (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i], true
		}
	}
	return Notification{}, false
}

// AuthServiceMock is a lightweight mock for AuthService
type AuthServiceMock struct {
	LoginFn                      func(ctx context.Context, email, password string) (*auth.AuthTokens, error)
	RegisterFn                   func(ctx context.Context, req *auth.RegisterRequest) (*auth.AuthTokens, error)
	ChangePasswordFn             func(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	RefreshAccessTokenFn         func(ctx context.Context, refreshToken string) (string, error)
	SendConfirmationEmailFn      func(ctx context.Context, userID uuid.UUID) error
	ConfirmEmailFn               func(ctx context.Context, userID uuid.UUID, token string) error
	GeneratePasswordResetTokenFn func(ctx context.Context, email string) error
	ResetPasswordFn              func(ctx context.Context, email, token, newPassword string) error
	LogoutFn                     func(ctx context.Context, refreshToken string) error
	ValidateTokenFn              func(ctx context.Context, token string) (*auth.Claims, error)
}

var _ ports.AuthService = (*AuthServiceMock)(nil)

func (m *AuthServiceMock) Login(ctx context.Context, email, password string) (*auth.AuthTokens, error) {
	if m.LoginFn != nil {
		return m.LoginFn(ctx, email, password)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *AuthServiceMock) Register(ctx context.Context, req *auth.RegisterRequest) (*auth.AuthTokens, error) {
	if m.RegisterFn != nil {
		return m.RegisterFn(ctx, req)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *AuthServiceMock) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if m.ChangePasswordFn != nil {
		return m.ChangePasswordFn(ctx, userID, oldPassword, newPassword)
	}
	return nil
}
func (m *AuthServiceMock) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if m.RefreshAccessTokenFn != nil {
		return m.RefreshAccessTokenFn(ctx, refreshToken)
	}
	return "", fmt.Errorf("not implemented")
}
func (m *AuthServiceMock) SendConfirmationEmail(ctx context.Context, userID uuid.UUID) error {
	if m.SendConfirmationEmailFn != nil {
		return m.SendConfirmationEmailFn(ctx, userID)
	}
	return nil
}
func (m *AuthServiceMock) ConfirmEmail(ctx context.Context, userID uuid.UUID, token string) error {
	if m.ConfirmEmailFn != nil {
		return m.ConfirmEmailFn(ctx, userID, token)
	}
	return nil
}
func (m *AuthServiceMock) GeneratePasswordResetToken(ctx context.Context, email string) error {
	if m.GeneratePasswordResetTokenFn != nil {
		return m.GeneratePasswordResetTokenFn(ctx, email)
	}
	return nil
}
func (m *AuthServiceMock) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	if m.ResetPasswordFn != nil {
		return m.ResetPasswordFn(ctx, email, token, newPassword)
	}
	return nil
}
func (m *AuthServiceMock) Logout(ctx context.Context, refreshToken string) error {
	if m.LogoutFn != nil {
		return m.LogoutFn(ctx, refreshToken)
	}
	return nil
}
func (m *AuthServiceMock) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, token)
	}
	return nil, fmt.Errorf("invalid token")
}

// AdminServiceMock is a lightweight mock for AdminService
type AdminServiceMock struct {
	ListUsersFn            func(ctx context.Context, limit int) ([]*user.User, error)
	GetRolesFn             func(ctx context.Context, userID uuid.UUID) ([]string, error)
	AssignRoleFn           func(ctx context.Context, userID uuid.UUID, role string, assignedBy uuid.UUID) error
	RemoveRoleFn           func(ctx context.Context, userID uuid.UUID, role string) error
	HasRoleFn              func(ctx context.Context, userID uuid.UUID, role string) (bool, error)
	CleanupExpiredTokensFn func(ctx context.Context) (*ports.CleanupReport, error)
}

var _ ports.AdminService = (*AdminServiceMock)(nil)

func (m *AdminServiceMock) ListUsers(ctx context.Context, limit int) ([]*user.User, error) {
	if m.ListUsersFn != nil {
		return m.ListUsersFn(ctx, limit)
	}
	return nil, nil
}
func (m *AdminServiceMock) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if m.GetRolesFn != nil {
		return m.GetRolesFn(ctx, userID)
	}
	return nil, nil
}
func (m *AdminServiceMock) AssignRole(ctx context.Context, userID uuid.UUID, role string, assignedBy uuid.UUID) error {
	if m.AssignRoleFn != nil {
		return m.AssignRoleFn(ctx, userID, role, assignedBy)
	}
	return nil
}
func (m *AdminServiceMock) RemoveRole(ctx context.Context, userID uuid.UUID, role string) error {
	if m.RemoveRoleFn != nil {
		return m.RemoveRoleFn(ctx, userID, role)
	}
	return nil
}
func (m *AdminServiceMock) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	if m.HasRoleFn != nil {
		return m.HasRoleFn(ctx, userID, role)
	}
	return false, nil
}
func (m *AdminServiceMock) CleanupExpiredTokens(ctx context.Context) (*ports.CleanupReport, error) {
	if m.CleanupExpiredTokensFn != nil {
		return m.CleanupExpiredTokensFn(ctx)
	}
	return &ports.CleanupReport{}, nil
}

// RateLimiterServiceMock is a lightweight mock for RateLimiterService
type RateLimiterServiceMock struct {
	AllowFn func(ctx context.Context, key string) (bool, int, int, time.Time, error)
}

func (m *RateLimiterServiceMock) Allow(ctx context.Context, key string) (bool, int, int, time.Time, error) {
	if m.AllowFn != nil {
		return m.AllowFn(ctx, key)
	}
	return true, 1, 1, time.Now().Add(time.Minute), nil
}

// RateLimitRepositoryMock counts increments in memory per key and window.
type RateLimitRepositoryMock struct {
	Err error

	mu     sync.Mutex
	counts map[string]int
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, key string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	windowStart := time.Now().Truncate(window)
	if m.Err != nil {
		return 0, windowStart, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	k := fmt.Sprintf("%s:%s:%d", keyPrefix, key, windowStart.Unix())
	m.counts[k]++
	return m.counts[k], windowStart, nil
}
