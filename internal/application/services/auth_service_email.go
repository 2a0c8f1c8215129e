package services

import (
	"context"
	"fmt"

	"github.com/avatarctic/identity-kv/internal/core/apperror"
	"github.com/avatarctic/identity-kv/internal/core/domain/token"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (s *AuthService) SendConfirmationEmail(ctx context.Context, userID uuid.UUID) error {
	foundUser, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return notFoundAs(err, apperror.ErrUserNotFound)
	}

	confirmation, err := s.issueEphemeralToken(ctx, foundUser, token.TypeEmailConfirmation)
	if err != nil {
		return err
	}

	s.notify(foundUser, "email_confirmation", s.notifier.SendEmailConfirmation(ctx, foundUser.ID, foundUser.Email, confirmation.Token))
	return nil
}

func (s *AuthService) ConfirmEmail(ctx context.Context, userID uuid.UUID, confirmationToken string) error {
	foundUser, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return notFoundAs(err, apperror.ErrUserNotFound)
	}

	stored, err := s.ephemeralTokens.GetByTokenAndType(ctx, confirmationToken, token.TypeEmailConfirmation)
	if err != nil {
		return notFoundAs(err, apperror.ErrInvalidEmailToken)
	}
	if stored.UserID != userID || !stored.IsValid() {
		return apperror.ErrInvalidEmailToken
	}

	foundUser.IsEmailConfirmed = true
	foundUser.Touch()
	if err := s.users.Update(ctx, foundUser); err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}

	if err := s.ephemeralTokens.MarkUsed(ctx, stored.ID); err != nil {
		return fmt.Errorf("failed to consume confirmation token: %w", err)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"user_id": userID}).Info("email confirmed")
	}
	return nil
}
