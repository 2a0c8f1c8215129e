package repositories

import (
	"context"
	"time"

	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type UserRoleRepository struct {
	*Repository[user.UserRole]
	logger *logrus.Logger
}

var _ ports.UserRoleRepository = (*UserRoleRepository)(nil)

func NewUserRoleRepository(client kv.Client, table string, logger *logrus.Logger) *UserRoleRepository {
	return &UserRoleRepository{
		Repository: NewRepository(client, UserRolesTable(table), userRoleSchema(NewCodecRegistry(), logger), logger),
		logger:     logger,
	}
}

func (r *UserRoleRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]*user.UserRole, error) {
	return r.QueryIndex(ctx, UserIDIndex, codec.String(userID.String()), 0)
}

func (r *UserRoleRepository) find(ctx context.Context, userID uuid.UUID, role string) (*user.UserRole, error) {
	roles, err := r.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, ur := range roles {
		if ur.RoleName == role {
			return ur, nil
		}
	}
	return nil, nil
}

func (r *UserRoleRepository) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	ur, err := r.find(ctx, userID, role)
	return ur != nil, err
}

// AddRole is a no-op when the user already holds role.
func (r *UserRoleRepository) AddRole(ctx context.Context, userID uuid.UUID, role string, assignedBy *uuid.UUID) error {
	existing, err := r.find(ctx, userID, role)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	ur := &user.UserRole{
		ID:         uuid.New(),
		UserID:     userID,
		RoleName:   role,
		AssignedAt: time.Now().UTC(),
		AssignedBy: assignedBy,
	}
	if err := r.Add(ctx, ur); err != nil {
		return err
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"user_id": userID, "role": role}).Info("kv: role assigned")
	}
	return nil
}

func (r *UserRoleRepository) RemoveRole(ctx context.Context, userID uuid.UUID, role string) error {
	existing, err := r.find(ctx, userID, role)
	if err != nil || existing == nil {
		return err
	}
	return r.Delete(ctx, existing.ID)
}

func (r *UserRoleRepository) GetRoleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	roles, err := r.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, ur := range roles {
		names = append(names, ur.RoleName)
	}
	return names, nil
}
