package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tsb/banking-service/internal/store"
)

// CredentialSweeper periodically deletes expired refresh tokens and finished
// OTP tokens so the credential tables do not grow without bound.
type CredentialSweeper struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewCredentialSweeper creates a CredentialSweeper.
func NewCredentialSweeper(repo store.Repository, logger *zap.Logger) *CredentialSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialSweeper{repo: repo, logger: logger}
}

// Sweep removes expired refresh tokens and consumed or expired OTP tokens.
func (s *CredentialSweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	refreshRemoved, err := s.repo.DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		s.logger.Error("refresh token sweep failed", zap.Error(err))
	}
	otpRemoved, err := s.repo.DeleteFinishedOTPTokens(ctx, now)
	if err != nil {
		s.logger.Error("otp token sweep failed", zap.Error(err))
	}
	s.logger.Info("credential sweep complete",
		zap.Int64("refresh_tokens_removed", refreshRemoved),
		zap.Int64("otp_tokens_removed", otpRemoved),
	)
}
