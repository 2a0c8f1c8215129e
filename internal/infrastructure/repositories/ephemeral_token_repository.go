package repositories

import (
	"context"
	"fmt"

	"github.com/avatarctic/identity-kv/internal/core/domain/token"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type EphemeralTokenRepository struct {
	*Repository[token.EphemeralToken]
	registry *codec.Registry
	logger   *logrus.Logger
}

var _ ports.EphemeralTokenRepository = (*EphemeralTokenRepository)(nil)

func NewEphemeralTokenRepository(client kv.Client, table string, logger *logrus.Logger) *EphemeralTokenRepository {
	registry := NewCodecRegistry()
	return &EphemeralTokenRepository{
		Repository: NewRepository(client, EphemeralTokensTable(table), ephemeralTokenSchema(registry, logger), logger),
		registry:   registry,
		logger:     logger,
	}
}

func (r *EphemeralTokenRepository) GetByTokenAndType(ctx context.Context, value string, typ token.Type) (*token.EphemeralToken, error) {
	matches, err := r.QueryIndex(ctx, TokenIndex, codec.String(value), 0)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if m.Type == typ {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%s token: %w", typ, ports.ErrNotFound)
}

func (r *EphemeralTokenRepository) GetByUserAndType(ctx context.Context, userID uuid.UUID, typ token.Type) ([]*token.EphemeralToken, error) {
	matches, err := r.QueryIndex(ctx, UserIDIndex, codec.String(userID.String()), 0)
	if err != nil {
		return nil, err
	}
	out := make([]*token.EphemeralToken, 0, len(matches))
	for _, m := range matches {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out, nil
}

// MarkUsed flips only the IsUsed attribute so concurrent writers of other
// attributes are not overwritten.
func (r *EphemeralTokenRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	if err := r.SetAttributes(ctx, id, codec.Item{attrIsUsed: codec.Bool(true)}); err != nil {
		return err
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"token_id": id}).Debug("kv: ephemeral token marked used")
	}
	return nil
}

func (r *EphemeralTokenRepository) InvalidateAllForUser(ctx context.Context, userID uuid.UUID, typ token.Type) error {
	tokens, err := r.GetByUserAndType(ctx, userID, typ)
	if err != nil {
		return err
	}
	invalidated := 0
	for _, t := range tokens {
		if !t.IsValid() {
			continue
		}
		if err := r.MarkUsed(ctx, t.ID); err != nil {
			return err
		}
		invalidated++
	}
	if r.logger != nil && invalidated > 0 {
		r.logger.WithFields(logrus.Fields{"user_id": userID, "type": typ, "count": invalidated}).Info("kv: ephemeral tokens invalidated")
	}
	return nil
}

func (r *EphemeralTokenRepository) CleanupExpired(ctx context.Context) (int, error) {
	return sweepExpired(ctx, r.Repository, r.registry, func(t *token.EphemeralToken) uuid.UUID { return t.ID }, r.logger)
}
