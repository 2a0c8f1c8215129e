package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/avatarctic/identity-kv/internal/core/domain/token"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RefreshTokenRepository stores refresh tokens by fingerprint. The opaque
// value handed to clients is never persisted.
type RefreshTokenRepository struct {
	*Repository[token.RefreshToken]
	registry *codec.Registry
	logger   *logrus.Logger
}

var _ ports.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

func NewRefreshTokenRepository(client kv.Client, table string, logger *logrus.Logger) *RefreshTokenRepository {
	registry := NewCodecRegistry()
	return &RefreshTokenRepository{
		Repository: NewRepository(client, RefreshTokensTable(table), refreshTokenSchema(registry, logger), logger),
		registry:   registry,
		logger:     logger,
	}
}

// Fingerprint is the SHA-256 hex digest under which a token is indexed.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Store creates a new record; existing tokens of the user stay valid.
func (r *RefreshTokenRepository) Store(ctx context.Context, userID uuid.UUID, value string, expiresAt time.Time) error {
	rt := &token.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     Fingerprint(value),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Add(ctx, rt); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// find returns the matching record, or nil when the token is unknown. When
// several records share a fingerprint the live one is preferred.
func (r *RefreshTokenRepository) find(ctx context.Context, value string) (*token.RefreshToken, error) {
	matches, err := r.QueryIndex(ctx, TokenIndex, codec.String(Fingerprint(value)), 0)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	now := time.Now()
	for _, m := range matches {
		if m.IsActive(now) {
			return m, nil
		}
	}
	return matches[0], nil
}

func (r *RefreshTokenRepository) IsValid(ctx context.Context, value string) (bool, error) {
	rt, err := r.find(ctx, value)
	if err != nil {
		return false, err
	}
	return rt != nil && rt.IsActive(time.Now()), nil
}

func (r *RefreshTokenRepository) GetOwner(ctx context.Context, value string) (uuid.UUID, bool, error) {
	rt, err := r.find(ctx, value)
	if err != nil {
		return uuid.Nil, false, err
	}
	if rt == nil {
		return uuid.Nil, false, nil
	}
	return rt.UserID, true, nil
}

// Invalidate revokes the token. Unknown tokens are ignored so sign-out is idempotent.
func (r *RefreshTokenRepository) Invalidate(ctx context.Context, value string) error {
	rt, err := r.find(ctx, value)
	if err != nil {
		return err
	}
	if rt == nil || rt.IsRevoked {
		return nil
	}
	rt.IsRevoked = true
	if err := r.Update(ctx, rt); err != nil {
		return err
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"user_id": rt.UserID, "token_id": rt.ID}).Info("kv: refresh token revoked")
	}
	return nil
}

func (r *RefreshTokenRepository) CleanupExpired(ctx context.Context) (int, error) {
	return sweepExpired(ctx, r.Repository, r.registry, func(t *token.RefreshToken) uuid.UUID { return t.ID }, r.logger)
}

// sweepExpired deletes every record of repo whose ExpiresAt lies in the past.
func sweepExpired[T any](ctx context.Context, repo *Repository[T], registry *codec.Registry, id func(*T) uuid.UUID, logger *logrus.Logger) (int, error) {
	now, err := codec.EncodeValue(registry, time.Now())
	if err != nil {
		return 0, err
	}
	expired, err := repo.ScanAll(ctx, &kv.Filter{Attr: attrExpiresAt, Op: kv.OpLt, Value: now}, 0)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range expired {
		if err := repo.Delete(ctx, id(e)); err != nil {
			return removed, err
		}
		removed++
	}
	if logger != nil && removed > 0 {
		logger.WithFields(logrus.Fields{"table": repo.Table().Name, "removed": removed}).Info("kv: expired records removed")
	}
	return removed, nil
}
