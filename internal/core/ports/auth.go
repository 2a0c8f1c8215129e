package ports

import (
	"context"
	"time"

	"github.com/avatarctic/identity-kv/internal/core/domain/auth"
	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/google/uuid"
)

// AuthService is the credential and session lifecycle contract. Expected
// business failures are returned as *apperror.Error values; store faults are
// returned wrapped.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*auth.AuthTokens, error)
	Register(ctx context.Context, req *auth.RegisterRequest) (*auth.AuthTokens, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	SendConfirmationEmail(ctx context.Context, userID uuid.UUID) error
	ConfirmEmail(ctx context.Context, userID uuid.UUID, token string) error
	GeneratePasswordResetToken(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, token, newPassword string) error
	Logout(ctx context.Context, refreshToken string) error

	// ValidateToken verifies an access token issued by this service.
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// RefreshTokenRepository stores refresh credentials. Several live tokens may
// exist per user, one per session.
type RefreshTokenRepository interface {
	Store(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	IsValid(ctx context.Context, token string) (bool, error)
	// GetOwner returns uuid.Nil and false when no record matches.
	GetOwner(ctx context.Context, token string) (uuid.UUID, bool, error)
	// Invalidate revokes the token; unknown or already revoked tokens are a no-op.
	Invalidate(ctx context.Context, token string) error
	// CleanupExpired deletes every record whose expiry has passed.
	CleanupExpired(ctx context.Context) (int, error)
}

// AdminService groups the maintenance operations exposed to administrators.
type AdminService interface {
	ListUsers(ctx context.Context, limit int) ([]*user.User, error)
	GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role string, assignedBy uuid.UUID) error
	RemoveRole(ctx context.Context, userID uuid.UUID, role string) error
	HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error)
	CleanupExpiredTokens(ctx context.Context) (*CleanupReport, error)
}

// CleanupReport counts the records removed by a cleanup sweep.
type CleanupReport struct {
	RefreshTokens   int `json:"refresh_tokens"`
	EphemeralTokens int `json:"ephemeral_tokens"`
}
