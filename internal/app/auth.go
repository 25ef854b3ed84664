/**
 * @description
 * This file implements authentication: credential login, refresh token
 * rotation, and password updates. Refresh tokens rotate on every use; the
 * consumed token is revoked and linked to its replacement JTI so reuse of an
 * old token can be detected and refused.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: Password hashing and verification.
 * - internal/store: Persistence for users and refresh tokens.
 */

package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tsb/banking-service/internal/domain"
	"github.com/tsb/banking-service/internal/store"
)

// minPasswordLength is the weakest password the service accepts.
const minPasswordLength = 8

// ErrInvalidCredentials is returned when login or refresh cannot be honored.
// It deliberately does not distinguish unknown users from wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService handles login, token rotation, and password changes.
type AuthService struct {
	repo   store.Repository
	tokens *TokenIssuer
	logger *zap.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(repo store.Repository, tokens *TokenIssuer, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{repo: repo, tokens: tokens, logger: logger}
}

// Tokens exposes the issuer for the HTTP auth middleware.
func (s *AuthService) Tokens() *TokenIssuer { return s.tokens }

// Login verifies a username and password and issues a fresh token pair.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.repo.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", zap.String("username", user.Username))
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked, linked to
// its replacement, and a new pair is issued. Revoked or expired tokens yield
// ErrInvalidCredentials.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	jti, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	record, err := s.repo.FindRefreshTokenByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, store.ErrRefreshTokenNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	now := time.Now().UTC()
	if record.Revoked || now.After(record.ExpiresAt) {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.FindUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	newRefresh, newJTI, expiresAt, err := s.tokens.IssueRefreshToken(user, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RevokeRefreshToken(ctx, jti, &newJTI); err != nil {
		return nil, err
	}
	if err := s.repo.CreateRefreshToken(ctx, &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		JTI:       newJTI,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccessToken(user, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// UpdatePassword hashes and stores a new password for the user.
func (s *AuthService) UpdatePassword(ctx context.Context, user *domain.User, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return domain.NewBusinessError(domain.CodeWeakPassword, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserPassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	s.logger.Info("password updated", zap.String("username", user.Username))
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	now := time.Now().UTC()
	access, err := s.tokens.IssueAccessToken(user, now)
	if err != nil {
		return nil, err
	}
	refresh, jti, expiresAt, err := s.tokens.IssueRefreshToken(user, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateRefreshToken(ctx, &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}
