package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	FirstName        *string   `json:"first_name,omitempty"`
	LastName         *string   `json:"last_name,omitempty"`
	IsActive         bool      `json:"is_active"`
	IsEmailConfirmed bool      `json:"is_email_confirmed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// New returns an active, unconfirmed user with a fresh identity.
func New(email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail is applied before every read or write keyed by email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Touch bumps UpdatedAt.
func (u *User) Touch() {
	u.UpdatedAt = time.Now().UTC()
}

// DisplayName is the greeting used in notifications.
func (u *User) DisplayName() string {
	if u.FirstName != nil && *u.FirstName != "" {
		return *u.FirstName
	}
	return u.Email
}

// UserRole assigns a named role to a user.
type UserRole struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	RoleName   string     `json:"role_name"`
	AssignedAt time.Time  `json:"assigned_at"`
	AssignedBy *uuid.UUID `json:"assigned_by,omitempty"`
}

const RoleAdmin = "admin"
