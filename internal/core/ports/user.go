package ports

import (
	"context"

	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/google/uuid"
)

// UserRepository defines the interface for user data operations. Email
// arguments are normalized by the implementation.
type UserRepository interface {
	Add(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetAll(ctx context.Context, limit int) ([]*user.User, error)
	Update(ctx context.Context, u *user.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRoleRepository stores role assignments. A (user, role) pair is stored once.
type UserRoleRepository interface {
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*user.UserRole, error)
	HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error)
	AddRole(ctx context.Context, userID uuid.UUID, role string, assignedBy *uuid.UUID) error
	RemoveRole(ctx context.Context, userID uuid.UUID, role string) error
	GetRoleNames(ctx context.Context, userID uuid.UUID) ([]string, error)
}
