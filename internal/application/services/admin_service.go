package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/avatarctic/identity-kv/internal/core/apperror"
	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AdminService implements user listing, role management and token cleanup.
type AdminService struct {
	users           ports.UserRepository
	roles           ports.UserRoleRepository
	refreshTokens   ports.RefreshTokenRepository
	ephemeralTokens ports.EphemeralTokenRepository
	logger          *logrus.Logger
}

var _ ports.AdminService = (*AdminService)(nil)

func NewAdminService(users ports.UserRepository, roles ports.UserRoleRepository, refreshTokens ports.RefreshTokenRepository, ephemeralTokens ports.EphemeralTokenRepository, logger *logrus.Logger) *AdminService {
	return &AdminService{
		users:           users,
		roles:           roles,
		refreshTokens:   refreshTokens,
		ephemeralTokens: ephemeralTokens,
		logger:          logger,
	}
}

func (s *AdminService) ListUsers(ctx context.Context, limit int) ([]*user.User, error) {
	return s.users.GetAll(ctx, limit)
}

func (s *AdminService) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, notFoundAs(err, apperror.ErrUserNotFound)
	}
	return s.roles.GetRoleNames(ctx, userID)
}

func (s *AdminService) AssignRole(ctx context.Context, userID uuid.UUID, role string, assignedBy uuid.UUID) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return notFoundAs(err, apperror.ErrUserNotFound)
	}

	var by *uuid.UUID
	if assignedBy != uuid.Nil {
		by = &assignedBy
	}
	if err := s.roles.AddRole(ctx, userID, normalizeRole(role), by); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"user_id": userID, "role": role, "assigned_by": assignedBy}).Info("role assigned")
	}
	return nil
}

func (s *AdminService) RemoveRole(ctx context.Context, userID uuid.UUID, role string) error {
	role = normalizeRole(role)
	held, err := s.roles.HasRole(ctx, userID, role)
	if err != nil {
		return err
	}
	if !held {
		return apperror.ErrRoleAssignmentMissing
	}
	return s.roles.RemoveRole(ctx, userID, role)
}

func (s *AdminService) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	return s.roles.HasRole(ctx, userID, normalizeRole(role))
}

// CleanupExpiredTokens sweeps both token tables. A failure in the first
// sweep does not prevent the second.
func (s *AdminService) CleanupExpiredTokens(ctx context.Context) (*ports.CleanupReport, error) {
	report := &ports.CleanupReport{}
	var errs []string

	n, err := s.refreshTokens.CleanupExpired(ctx)
	report.RefreshTokens = n
	if err != nil {
		errs = append(errs, fmt.Sprintf("refresh tokens: %v", err))
	}

	n, err = s.ephemeralTokens.CleanupExpired(ctx)
	report.EphemeralTokens = n
	if err != nil {
		errs = append(errs, fmt.Sprintf("ephemeral tokens: %v", err))
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"refresh_tokens":   report.RefreshTokens,
			"ephemeral_tokens": report.EphemeralTokens,
		}).Info("expired tokens cleaned up")
	}

	if len(errs) > 0 {
		return report, fmt.Errorf("token cleanup failed: %s", strings.Join(errs, "; "))
	}
	return report, nil
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
