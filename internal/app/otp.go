/**
 * @description
 * This file implements the OTP password reset flow. A reset request issues a
 * six digit one-time code, stores only its SHA-256 hash, and delivers the code
 * by SMS. Confirmation consumes the code, enforcing expiry and an attempt
 * lockout, and then updates the password.
 *
 * @dependencies
 * - crypto/rand, crypto/sha256: Code generation and hashing.
 * - pkg/sms: Outbound code delivery.
 */

package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsb/banking-service/internal/domain"
	"github.com/tsb/banking-service/internal/store"
	"github.com/tsb/banking-service/pkg/sms"
)

const (
	otpCodeDigits  = 6
	otpMaxAttempts = 5
	otpRateScope   = "otp:password_reset"
)

// OTPService issues and verifies one-time password reset codes.
type OTPService struct {
	repo       store.Repository
	auth       *AuthService
	sender     sms.Sender
	limiter    RateLimiter
	ttl        time.Duration
	maxPerHour int
	logger     *zap.Logger
}

// NewOTPService creates an OTPService. The limiter may be nil; the hourly cap
// is then enforced from the database instead.
func NewOTPService(repo store.Repository, auth *AuthService, sender sms.Sender, limiter RateLimiter, ttl time.Duration, maxPerHour int, logger *zap.Logger) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTPService{
		repo:       repo,
		auth:       auth,
		sender:     sender,
		limiter:    limiter,
		ttl:        ttl,
		maxPerHour: maxPerHour,
		logger:     logger,
	}
}

// RequestPasswordReset issues a reset code for the user identified by
// username, email, or phone, and returns the masked destination.
func (s *OTPService) RequestPasswordReset(ctx context.Context, identifier string) (string, error) {
	user, err := s.repo.FindUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", domain.NewBusinessError(domain.CodeUserNotFound, "no user matches the given identifier")
		}
		return "", err
	}
	phone := strings.TrimSpace(user.Phone)
	if phone == "" {
		return "", domain.NewBusinessError(domain.CodeNoPhone, "user has no phone number on file")
	}

	if err := s.checkRateLimit(ctx, phone); err != nil {
		return "", err
	}

	code, err := generateOTPCode()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	token := &domain.OTPToken{
		ID:          uuid.New(),
		UserID:      user.ID,
		Destination: phone,
		CodeHash:    sha256Hex(code),
		Purpose:     domain.OTPPurposePasswordReset,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.repo.CreateOTPToken(ctx, token); err != nil {
		return "", err
	}

	message := fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.sender.Send(ctx, phone, message); err != nil {
		return "", err
	}

	masked := maskPhone(phone)
	s.logger.Info("password reset code issued", zap.String("destination", masked))
	return masked, nil
}

// ConfirmPasswordReset verifies a reset code and, if valid, updates the
// password. The code is single-use; expiry consumes it, and five wrong
// attempts lock it out.
func (s *OTPService) ConfirmPasswordReset(ctx context.Context, identifier, code, newPassword string) error {
	user, err := s.repo.FindUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return domain.NewBusinessError(domain.CodeUserNotFound, "no user matches the given identifier")
		}
		return err
	}

	token, err := s.repo.FindLatestActiveOTPToken(ctx, user.ID, domain.OTPPurposePasswordReset)
	if err != nil {
		if errors.Is(err, store.ErrOTPTokenNotFound) {
			return domain.NewBusinessError(domain.CodeOTPNotFound, "no active reset code; request a new one")
		}
		return err
	}

	now := time.Now().UTC()
	if now.After(token.ExpiresAt) {
		if err := s.repo.MarkOTPTokenConsumed(ctx, token.ID); err != nil {
			return err
		}
		return domain.NewBusinessError(domain.CodeOTPExpired, "reset code has expired; request a new one")
	}

	if sha256Hex(code) != token.CodeHash {
		token.Attempts++
		if token.Attempts >= otpMaxAttempts {
			if err := s.repo.MarkOTPTokenConsumed(ctx, token.ID); err != nil {
				return err
			}
			return domain.NewBusinessError(domain.CodeOTPLocked, "too many wrong attempts; request a new code")
		}
		if err := s.repo.UpdateOTPTokenAttempts(ctx, token.ID, token.Attempts); err != nil {
			return err
		}
		return domain.NewBusinessError(domain.CodeOTPInvalid, "reset code is incorrect")
	}

	if err := s.repo.MarkOTPTokenConsumed(ctx, token.ID); err != nil {
		return err
	}
	if err := s.auth.UpdatePassword(ctx, user, newPassword); err != nil {
		return err
	}
	s.logger.Info("password reset confirmed", zap.String("username", user.Username))
	return nil
}

func (s *OTPService) checkRateLimit(ctx context.Context, destination string) error {
	if s.maxPerHour <= 0 {
		return nil
	}
	if s.limiter != nil {
		count, retryAfter, err := s.limiter.Consume(ctx, otpRateScope, destination, s.maxPerHour, time.Hour)
		if err != nil {
			s.logger.Warn("rate limit check failed; falling back to database", zap.Error(err))
		} else if count > s.maxPerHour {
			return domain.NewBusinessError(domain.CodeRateLimit,
				fmt.Sprintf("too many reset requests; try again in %d seconds", retryAfter))
		} else if count > 0 {
			return nil
		}
	}
	issued, err := s.repo.CountOTPTokensSince(ctx, destination, domain.OTPPurposePasswordReset, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		return err
	}
	if issued >= int64(s.maxPerHour) {
		return domain.NewBusinessError(domain.CodeRateLimit, "too many reset requests; try again later")
	}
	return nil
}

func generateOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpCodeDigits, n), nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// maskPhone hides the middle of a phone number, keeping enough of the ends
// for the user to recognize it.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
