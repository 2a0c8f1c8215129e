package services

import (
	"context"
	"fmt"

	"github.com/avatarctic/identity-kv/internal/core/apperror"
	"github.com/avatarctic/identity-kv/internal/core/domain/token"
	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChangePassword replaces the password after verifying the current one.
// Concurrent changes for one user are last-writer-wins.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	foundUser, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return notFoundAs(err, apperror.ErrUserNotFound)
	}

	if !s.hasher.Verify(foundUser.PasswordHash, oldPassword) {
		return apperror.ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, foundUser, newPassword); err != nil {
		return err
	}

	s.notify(foundUser, "password_changed", s.notifier.SendPasswordChanged(ctx, foundUser.ID, foundUser.Email))
	return nil
}

// GeneratePasswordResetToken invalidates earlier reset tokens of the user
// before minting a new one.
func (s *AuthService) GeneratePasswordResetToken(ctx context.Context, email string) error {
	foundUser, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		return notFoundAs(err, apperror.ErrUserNotFound)
	}

	reset, err := s.issueEphemeralToken(ctx, foundUser, token.TypePasswordReset)
	if err != nil {
		return err
	}

	s.notify(foundUser, "password_reset", s.notifier.SendPasswordReset(ctx, foundUser.ID, foundUser.Email, reset.Token))
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, email, resetToken, newPassword string) error {
	foundUser, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		return notFoundAs(err, apperror.ErrUserNotFound)
	}

	stored, err := s.ephemeralTokens.GetByTokenAndType(ctx, resetToken, token.TypePasswordReset)
	if err != nil {
		return notFoundAs(err, apperror.ErrInvalidResetToken)
	}
	if stored.UserID != foundUser.ID || !stored.IsValid() {
		return apperror.ErrInvalidResetToken
	}

	if err := s.setPassword(ctx, foundUser, newPassword); err != nil {
		return err
	}

	if err := s.ephemeralTokens.MarkUsed(ctx, stored.ID); err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"user_id": foundUser.ID}).Info("password reset completed")
	}
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, u *user.User, password string) error {
	if ok, violations := s.validator.Validate(password); !ok {
		return apperror.InvalidPassword(violations)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	u.PasswordHash = hash
	u.Touch()
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// issueEphemeralToken leaves at most one valid token of typ for the user.
// The invalidate and add steps are not atomic.
func (s *AuthService) issueEphemeralToken(ctx context.Context, u *user.User, typ token.Type) (*token.EphemeralToken, error) {
	if err := s.ephemeralTokens.InvalidateAllForUser(ctx, u.ID, typ); err != nil {
		return nil, fmt.Errorf("failed to invalidate previous %s tokens: %w", typ, err)
	}

	t := token.NewEphemeral(u.ID, typ, s.identityConfig.EphemeralTokenTTL)
	if err := s.ephemeralTokens.Add(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to store %s token: %w", typ, err)
	}
	return t, nil
}
