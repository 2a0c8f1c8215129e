package token

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a stored refresh credential. Token holds the fingerprint of
// the opaque value handed to the client, never the value itself.
type RefreshToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// IsActive reports whether the token may still authorize a refresh.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// Type distinguishes the transitions an ephemeral token can authorize.
type Type string

const (
	TypeEmailConfirmation Type = "EmailConfirmation"
	TypePasswordReset     Type = "PasswordReset"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case TypeEmailConfirmation, TypePasswordReset:
		return true
	default:
		return false
	}
}

// EphemeralToken is a single-use, time-boxed token.
type EphemeralToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      Type      `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	IsUsed    bool      `json:"is_used"`
}

// NewEphemeral mints a token of the given type valid for ttl.
func NewEphemeral(userID uuid.UUID, typ Type, ttl time.Duration) *EphemeralToken {
	now := time.Now().UTC()
	return &EphemeralToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     uuid.NewString(),
		Type:      typ,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// IsExpired checks if the token has expired
func (t *EphemeralToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// IsValid checks if the token is neither used nor expired. Once MarkUsed has
// been applied it never holds again.
func (t *EphemeralToken) IsValid() bool {
	return !t.IsUsed && !t.IsExpired()
}
