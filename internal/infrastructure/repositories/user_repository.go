package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/sirupsen/logrus"
)

// UserRepository implements the user repository interface
type UserRepository struct {
	*Repository[user.User]
	logger *logrus.Logger
}

var _ ports.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new user repository
func NewUserRepository(client kv.Client, table string, logger *logrus.Logger) *UserRepository {
	schema := userSchema(NewCodecRegistry(), logger)
	return &UserRepository{
		Repository: NewRepository(client, UsersTable(table), schema, logger),
		logger:     logger,
	}
}

// GetByEmail resolves a user through the email index after normalizing.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	normalized := user.NormalizeEmail(email)
	users, err := r.QueryIndex(ctx, EmailIndex, codec.String(normalized), 1)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"email": normalized}).Debug("kv: user not found by email")
		}
		return nil, fmt.Errorf("user with email %s: %w", normalized, ports.ErrNotFound)
	}
	return users[0], nil
}

// Add creates a new user. It returns ports.ErrConflict when the id or the
// normalized email is already taken. The email check is a read before the
// insert, so two concurrent adds of one email can both pass it.
func (r *UserRepository) Add(ctx context.Context, u *user.User) error {
	u.Email = user.NormalizeEmail(u.Email)
	existing, err := r.GetByEmail(ctx, u.Email)
	switch {
	case err == nil:
		r.debug(logrus.Fields{"email": u.Email, "user_id": existing.ID}, "kv: email already registered")
		return fmt.Errorf("user with email %s: %w", u.Email, ports.ErrConflict)
	case !errors.Is(err, ports.ErrNotFound):
		return err
	}
	if err := r.Repository.Add(ctx, u); err != nil {
		return err
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"user_id": u.ID, "email": u.Email}).Info("kv: user created")
	}
	return nil
}

// Update persists every attribute of u.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	u.Email = user.NormalizeEmail(u.Email)
	return r.Repository.Update(ctx, u)
}
