/**
 * @description
 * This file defines the `Repository` and `Tx` interfaces, which specify the
 * contract for all data access required by the banking-service. The `Tx`
 * interface is the explicit unit of work the transfer engine runs inside:
 * every balance change, ledger append, and idempotency write either commits
 * or rolls back together, and row locks taken via FindAccountForUpdate are
 * held until the unit of work ends.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identifier and money types.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tsb/banking-service/internal/domain"
)

// Repository defines the non-transactional reads and the entry point into a
// unit of work.
type Repository interface {
	// Begin opens an explicit unit of work. The caller owns the returned Tx
	// and must call Commit or Rollback; the surrounding context bounds every
	// lock wait inside it.
	Begin(ctx context.Context) (Tx, error)

	// Account and ledger reads (committed state, no locks).
	FindAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountsByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error)
	FindLedgerEntries(ctx context.Context, accountID uuid.UUID, from, to time.Time, limit, offset int) ([]domain.LedgerEntry, int64, error)

	// Idempotency registry reads.
	FindIdempotencyRecord(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error)

	// User and credential methods.
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	FindUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error

	// Refresh token methods.
	CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	FindRefreshTokenByJTI(ctx context.Context, jti string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, jti string, replacedByJTI *string) error
	DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)

	// OTP token methods.
	CreateOTPToken(ctx context.Context, token *domain.OTPToken) error
	FindLatestActiveOTPToken(ctx context.Context, userID uuid.UUID, purpose string) (*domain.OTPToken, error)
	MarkOTPTokenConsumed(ctx context.Context, tokenID uuid.UUID) error
	UpdateOTPTokenAttempts(ctx context.Context, tokenID uuid.UUID, attempts int) error
	CountOTPTokensSince(ctx context.Context, destination, purpose string, since time.Time) (int64, error)
	DeleteFinishedOTPTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tx is one atomic unit of work over the account store, the ledger entry
// log, and the idempotency registry.
type Tx interface {
	// FindAccountForUpdate reads an account row and takes an exclusive lock
	// on it, blocking until the lock is free. The lock is released when the
	// unit of work commits or rolls back.
	FindAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// SaveAccountBalance persists a new balance for a row this unit of work
	// has locked.
	SaveAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error

	// CreateLedgerEntry appends one immutable ledger entry.
	CreateLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error

	// SaveIdempotencyRecord inserts the outcome of this transfer. A concurrent
	// writer that already inserted the same (scope, key) surfaces as
	// ErrDuplicateIdempotencyKey, which the caller must treat as "someone
	// else just completed this transfer".
	SaveIdempotencyRecord(ctx context.Context, record *domain.IdempotencyRecord) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
