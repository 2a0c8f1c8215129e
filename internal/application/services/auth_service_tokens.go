package services

import (
	"context"
	"fmt"
	"time"

	"github.com/avatarctic/identity-kv/internal/core/apperror"
	"github.com/avatarctic/identity-kv/internal/core/domain/auth"
	"github.com/avatarctic/identity-kv/internal/core/domain/user"
	"github.com/avatarctic/identity-kv/internal/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// generateTokens issues an access token and stores a new refresh token.
// Existing refresh tokens of the user are left untouched.
func (s *AuthService) generateTokens(ctx context.Context, u *user.User) (*auth.AuthTokens, error) {
	accessToken, err := s.generateAccessToken(u)
	if err != nil {
		return nil, err
	}

	refreshToken, err := utils.RandomToken(utils.RefreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.jwtConfig.RefreshTokenTTL)
	if err := s.refreshTokens.Store(ctx, u.ID, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &auth.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtConfig.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *AuthService) generateAccessToken(u *user.User) (string, error) {
	now := time.Now()

	claims := &auth.Claims{
		UserID: u.ID,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ID:        uuid.NewString(),
			Issuer:    s.jwtConfig.Issuer,
			Audience:  jwt.ClaimStrings{s.jwtConfig.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtConfig.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessTokenString, err := accessToken.SignedString([]byte(s.jwtConfig.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return accessTokenString, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &auth.Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC (prevent alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtConfig.Secret), nil
	},
		jwt.WithIssuer(s.jwtConfig.Issuer),
		jwt.WithAudience(s.jwtConfig.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, apperror.ErrInvalidAccessToken
	}

	claims, ok := token.Claims.(*auth.Claims)
	if !ok || claims.UserID == uuid.Nil {
		return nil, apperror.ErrInvalidAccessToken
	}

	return claims, nil
}
