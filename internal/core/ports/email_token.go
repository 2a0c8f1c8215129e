package ports

import (
	"context"

	"github.com/avatarctic/identity-kv/internal/core/domain/token"
	"github.com/google/uuid"
)

// EphemeralTokenRepository stores single-use email confirmation and password
// reset tokens.
type EphemeralTokenRepository interface {
	Add(ctx context.Context, t *token.EphemeralToken) error
	// GetByTokenAndType returns ErrNotFound when no token of that type matches.
	GetByTokenAndType(ctx context.Context, value string, typ token.Type) (*token.EphemeralToken, error)
	GetByUserAndType(ctx context.Context, userID uuid.UUID, typ token.Type) ([]*token.EphemeralToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
	// InvalidateAllForUser marks every currently valid token of typ for the user as used.
	InvalidateAllForUser(ctx context.Context, userID uuid.UUID, typ token.Type) error
	// CleanupExpired deletes expired tokens whether or not they were used.
	CleanupExpired(ctx context.Context) (int, error)
}
