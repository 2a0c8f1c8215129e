package repositories

import (
	"time"

	"github.com/avatarctic/identity-kv/internal/core/domain/token"
	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Attribute and index names shared by every driver.
const (
	attrID        = "Id"
	attrUserID    = "UserId"
	attrEmail     = "Email"
	attrToken     = "Token"
	attrType      = "Type"
	attrExpiresAt = "ExpiresAt"
	attrIsUsed    = "IsUsed"
	attrIsRevoked = "IsRevoked"

	EmailIndex  = "EmailIndex"
	TokenIndex  = "TokenIndex"
	UserIDIndex = "UserIdIndex"
)

// TableNames holds the configured physical table names.
type TableNames struct {
	Users           string
	RefreshTokens   string
	EphemeralTokens string
	UserRoles       string
}

// Definitions returns the table layouts drivers must serve.
func (n TableNames) Definitions() []kv.Table {
	return []kv.Table{
		UsersTable(n.Users),
		RefreshTokensTable(n.RefreshTokens),
		EphemeralTokensTable(n.EphemeralTokens),
		UserRolesTable(n.UserRoles),
	}
}

func UsersTable(name string) kv.Table {
	return kv.Table{Name: name, Key: attrID, Indexes: map[string]string{EmailIndex: attrEmail}}
}

func RefreshTokensTable(name string) kv.Table {
	return kv.Table{Name: name, Key: attrID, Indexes: map[string]string{TokenIndex: attrToken, UserIDIndex: attrUserID}}
}

func EphemeralTokensTable(name string) kv.Table {
	return kv.Table{Name: name, Key: attrID, Indexes: map[string]string{TokenIndex: attrToken, UserIDIndex: attrUserID}}
}

func UserRolesTable(name string) kv.Table {
	return kv.Table{Name: name, Key: attrID, Indexes: map[string]string{UserIDIndex: attrUserID}}
}

// NewCodecRegistry returns the builtin scalars plus the domain enums.
func NewCodecRegistry() *codec.Registry {
	r := codec.NewRegistry()
	codec.Register(r, codec.StringType[token.Type]())
	return r
}

func userSchema(r *codec.Registry, logger *logrus.Logger) *codec.Schema[user.User] {
	return codec.MustSchema(r, logger, attrID,
		codec.Attr(attrID, func(u *user.User) *uuid.UUID { return &u.ID }),
		codec.Attr(attrEmail, func(u *user.User) *string { return &u.Email }),
		codec.Attr("PasswordHash", func(u *user.User) *string { return &u.PasswordHash }),
		codec.Attr("FirstName", func(u *user.User) **string { return &u.FirstName }),
		codec.Attr("LastName", func(u *user.User) **string { return &u.LastName }),
		codec.Attr("IsActive", func(u *user.User) *bool { return &u.IsActive }),
		codec.Attr("IsEmailConfirmed", func(u *user.User) *bool { return &u.IsEmailConfirmed }),
		codec.Attr("CreatedAt", func(u *user.User) *time.Time { return &u.CreatedAt }),
		codec.Attr("UpdatedAt", func(u *user.User) *time.Time { return &u.UpdatedAt }),
	)
}

func refreshTokenSchema(r *codec.Registry, logger *logrus.Logger) *codec.Schema[token.RefreshToken] {
	return codec.MustSchema(r, logger, attrID,
		codec.Attr(attrID, func(t *token.RefreshToken) *uuid.UUID { return &t.ID }),
		codec.Attr(attrUserID, func(t *token.RefreshToken) *uuid.UUID { return &t.UserID }),
		codec.Attr(attrToken, func(t *token.RefreshToken) *string { return &t.Token }),
		codec.Attr(attrExpiresAt, func(t *token.RefreshToken) *time.Time { return &t.ExpiresAt }),
		codec.Attr(attrIsRevoked, func(t *token.RefreshToken) *bool { return &t.IsRevoked }),
		codec.Attr("CreatedAt", func(t *token.RefreshToken) *time.Time { return &t.CreatedAt }),
	)
}

func ephemeralTokenSchema(r *codec.Registry, logger *logrus.Logger) *codec.Schema[token.EphemeralToken] {
	return codec.MustSchema(r, logger, attrID,
		codec.Attr(attrID, func(t *token.EphemeralToken) *uuid.UUID { return &t.ID }),
		codec.Attr(attrUserID, func(t *token.EphemeralToken) *uuid.UUID { return &t.UserID }),
		codec.Attr(attrToken, func(t *token.EphemeralToken) *string { return &t.Token }),
		codec.Attr(attrType, func(t *token.EphemeralToken) *token.Type { return &t.Type }),
		codec.Attr(attrExpiresAt, func(t *token.EphemeralToken) *time.Time { return &t.ExpiresAt }),
		codec.Attr("CreatedAt", func(t *token.EphemeralToken) *time.Time { return &t.CreatedAt }),
		codec.Attr(attrIsUsed, func(t *token.EphemeralToken) *bool { return &t.IsUsed }),
	)
}

func userRoleSchema(r *codec.Registry, logger *logrus.Logger) *codec.Schema[user.UserRole] {
	return codec.MustSchema(r, logger, attrID,
		codec.Attr(attrID, func(ur *user.UserRole) *uuid.UUID { return &ur.ID }),
		codec.Attr(attrUserID, func(ur *user.UserRole) *uuid.UUID { return &ur.UserID }),
		codec.Attr("RoleName", func(ur *user.UserRole) *string { return &ur.RoleName }),
		codec.Attr("AssignedAt", func(ur *user.UserRole) *time.Time { return &ur.AssignedAt }),
		codec.Attr("AssignedBy", func(ur *user.UserRole) **uuid.UUID { return &ur.AssignedBy }),
	)
}
