package services

import (
	"context"
	"errors"
	"fmt"

	config "github.com/avatarctic/identity-kv/configs"
	"github.com/avatarctic/identity-kv/internal/core/apperror"
	"github.com/avatarctic/identity-kv/internal/core/domain/auth"
	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// AuthServiceDeps groups the collaborators of AuthService.
type AuthServiceDeps struct {
	Users           ports.UserRepository
	RefreshTokens   ports.RefreshTokenRepository
	EphemeralTokens ports.EphemeralTokenRepository
	Hasher          ports.PasswordHasher
	Validator       ports.PasswordValidator
	// Notifier must not be nil; use email.NoopNotifier when delivery is disabled.
	Notifier ports.NotificationService
}

// AuthService implements the credential and session lifecycle. State lives
// entirely in the store; the service itself holds no mutable state.
type AuthService struct {
	users           ports.UserRepository
	refreshTokens   ports.RefreshTokenRepository
	ephemeralTokens ports.EphemeralTokenRepository
	hasher          ports.PasswordHasher
	validator       ports.PasswordValidator
	notifier        ports.NotificationService
	jwtConfig       *config.JWTConfig
	identityConfig  *config.IdentityConfig
	logger          *logrus.Logger
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(deps AuthServiceDeps, jwtConfig *config.JWTConfig, identityConfig *config.IdentityConfig, logger *logrus.Logger) *AuthService {
	return &AuthService{
		users:           deps.Users,
		refreshTokens:   deps.RefreshTokens,
		ephemeralTokens: deps.EphemeralTokens,
		hasher:          deps.Hasher,
		validator:       deps.Validator,
		notifier:        deps.Notifier,
		jwtConfig:       jwtConfig,
		identityConfig:  identityConfig,
		logger:          logger,
	}
}

// Login issues a fresh token pair. Earlier refresh tokens stay valid, so a
// user can hold any number of live sessions.
func (s *AuthService) Login(ctx context.Context, email, password string) (*auth.AuthTokens, error) {
	foundUser, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		return nil, notFoundAs(err, apperror.ErrUserNotFound)
	}

	if !s.hasher.Verify(foundUser.PasswordHash, password) {
		return nil, apperror.ErrInvalidCredentials
	}

	if !foundUser.IsActive {
		return nil, apperror.ErrUserInactive
	}

	if s.identityConfig.RequireEmailConfirmation && !foundUser.IsEmailConfirmed {
		return nil, apperror.ErrEmailNotConfirmed
	}

	tokens, err := s.generateTokens(ctx, foundUser)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"user_id": foundUser.ID}).Info("user logged in")
	}
	return tokens, nil
}

func (s *AuthService) Register(ctx context.Context, req *auth.RegisterRequest) (*auth.AuthTokens, error) {
	email := user.NormalizeEmail(req.Email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperror.ErrUserAlreadyExists
	} else if !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}

	if ok, violations := s.validator.Validate(req.Password); !ok {
		return nil, apperror.InvalidPassword(violations)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	newUser := user.New(email, hash)
	newUser.FirstName = req.FirstName
	newUser.LastName = req.LastName

	if err := s.users.Add(ctx, newUser); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	tokens, err := s.generateTokens(ctx, newUser)
	if err != nil {
		return nil, err
	}

	if s.identityConfig.SendWelcomeEmail {
		s.notify(newUser, "welcome", s.notifier.SendWelcome(ctx, newUser.ID, newUser.Email))
	}

	return tokens, nil
}

// RefreshAccessToken mints a new access token. The refresh token is not rotated.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	valid, err := s.refreshTokens.IsValid(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", apperror.ErrInvalidRefreshToken
	}

	userID, ok, err := s.refreshTokens.GetOwner(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperror.ErrInvalidRefreshToken
	}

	foundUser, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", notFoundAs(err, apperror.ErrUserNotFound)
	}

	return s.generateAccessToken(foundUser)
}

// Logout revokes the refresh token. Unknown tokens succeed.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.refreshTokens.Invalidate(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to invalidate refresh token: %w", err)
	}
	return nil
}

// notify logs a failed best-effort notification; it never fails the caller.
func (s *AuthService) notify(u *user.User, kind string, err error) {
	if err == nil || s.logger == nil {
		return
	}
	s.logger.WithFields(logrus.Fields{"user_id": u.ID, "notification": kind}).WithError(err).Warn("failed to send notification")
}

// notFoundAs translates a repository miss into the business error; other
// errors are store faults and pass through.
func notFoundAs(err error, businessErr *apperror.Error) error {
	if errors.Is(err, ports.ErrNotFound) {
		return businessErr
	}
	return err
}
