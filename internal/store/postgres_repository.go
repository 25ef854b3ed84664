/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` and
 * `Tx` interfaces. It contains all the SQL required by the transfer engine
 * and its surrounding features: accounts, the append-only ledger, the
 * idempotency registry, users, refresh tokens, and OTP tokens.
 *
 * Concurrency contract: FindAccountForUpdate issues SELECT ... FOR UPDATE
 * inside a pgx transaction, so two units of work touching the same account
 * serialize on that row until the winner commits or rolls back. The unique
 * (scope, ikey) index on idempotency_keys arbitrates duplicate-submission
 * races; a violation is surfaced as ErrDuplicateIdempotencyKey.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and transaction support.
 * - github.com/shopspring/decimal: NUMERIC(19,2) column mapping.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tsb/banking-service/internal/domain"
)

var (
	ErrAccountNotFound           = errors.New("account not found")
	ErrUserNotFound              = errors.New("user not found")
	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrOTPTokenNotFound          = errors.New("otp token not found")
	ErrIdempotencyRecordNotFound = errors.New("idempotency record not found")

	// ErrDuplicateIdempotencyKey reports that a concurrent writer already
	// inserted the same (scope, key). The transfer engine treats this as
	// "someone else just completed this transfer".
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")

	// ErrLockNotAvailable reports a lock-wait timeout. It is transient:
	// the caller may safely retry with the same idempotency key.
	ErrLockNotAvailable = errors.New("account row lock not available")
)

const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

// PostgresRepository is the pgx-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository on a pgx pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Begin opens one unit of work. Locks taken through the returned Tx are
// released when it commits or rolls back.
func (r *PostgresRepository) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx}, nil
}

const accountColumns = "id, customer_id, number, currency, balance, status"

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.CustomerID, &a.Number, &a.Currency, &a.Balance, &a.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindAccount reads one account row without locking it.
func (r *PostgresRepository) FindAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
}

// FindAccountsByCustomer lists all accounts owned by a customer.
func (r *PostgresRepository) FindAccountsByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, "SELECT "+accountColumns+" FROM accounts WHERE customer_id = $1 ORDER BY number", customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.Number, &a.Currency, &a.Balance, &a.Status); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// FindLedgerEntries returns one page of an account's ledger history, newest
// first, restricted to the inclusive [from, to] range, plus the total number
// of matching entries.
func (r *PostgresRepository) FindLedgerEntries(ctx context.Context, accountID uuid.UUID, from, to time.Time, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		"SELECT count(*) FROM transactions WHERE account_id = $1 AND created_at BETWEEN $2 AND $3",
		accountID, from, to,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, type, amount, currency, reference, counterparty, created_at
		FROM transactions
		WHERE account_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		accountID, from, to, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount, &e.Currency, &e.Reference, &e.Counterparty, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// FindIdempotencyRecord looks up a previously recorded transfer outcome.
func (r *PostgresRepository) FindIdempotencyRecord(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, scope, ikey, payload_hash, debit_txn_id, credit_txn_id, created_at
		FROM idempotency_keys
		WHERE scope = $1 AND ikey = $2`,
		scope, key,
	).Scan(&rec.ID, &rec.Scope, &rec.Key, &rec.PayloadHash, &rec.DebitEntryID, &rec.CreditEntryID, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIdempotencyRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

const userColumns = "id, customer_id, username, COALESCE(email, ''), COALESCE(phone, ''), password_hash, roles"

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.CustomerID, &u.Username, &u.Email, &u.Phone, &u.PasswordHash, &u.Roles)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// FindUserByUsername retrieves a user by username, case-insensitively.
func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(username) = lower(btrim($1))", username))
}

// FindUserByIdentifier retrieves a user by username, email, or phone.
func (r *PostgresRepository) FindUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE lower(username) = lower(btrim($1))
		   OR lower(email) = lower(btrim($1))
		   OR phone = btrim($1)`,
		identifier))
}

// UpdateUserPassword replaces a user's password hash.
func (r *PostgresRepository) UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tag, err := r.db.Exec(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateRefreshToken persists one issued refresh token row.
func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, jti, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.UserID, token.JTI, token.ExpiresAt, token.Revoked,
	)
	return err
}

// FindRefreshTokenByJTI looks up a refresh token row by its JWT id.
func (r *PostgresRepository) FindRefreshTokenByJTI(ctx context.Context, jti string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, jti, expires_at, revoked, replaced_by_jti, created_at
		FROM refresh_tokens WHERE jti = $1`,
		jti,
	).Scan(&t.ID, &t.UserID, &t.JTI, &t.ExpiresAt, &t.Revoked, &t.ReplacedByJTI, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// RevokeRefreshToken marks a token revoked and links its replacement.
func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, jti string, replacedByJTI *string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE refresh_tokens SET revoked = TRUE, replaced_by_jti = $1 WHERE jti = $2",
		replacedByJTI, jti,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// DeleteExpiredRefreshTokens removes rows whose expiry is before cutoff.
func (r *PostgresRepository) DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM refresh_tokens WHERE expires_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateOTPToken persists a newly issued OTP token.
func (r *PostgresRepository) CreateOTPToken(ctx context.Context, token *domain.OTPToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO otp_tokens (id, user_id, destination, code_hash, purpose, expires_at, consumed, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		token.ID, token.UserID, token.Destination, token.CodeHash, token.Purpose, token.ExpiresAt, token.Consumed, token.Attempts,
	)
	return err
}

// FindLatestActiveOTPToken returns the newest unconsumed token for a user
// and purpose.
func (r *PostgresRepository) FindLatestActiveOTPToken(ctx context.Context, userID uuid.UUID, purpose string) (*domain.OTPToken, error) {
	var t domain.OTPToken
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, destination, code_hash, purpose, expires_at, consumed, attempts, created_at
		FROM otp_tokens
		WHERE user_id = $1 AND purpose = $2 AND consumed = FALSE
		ORDER BY created_at DESC
		LIMIT 1`,
		userID, purpose,
	).Scan(&t.ID, &t.UserID, &t.Destination, &t.CodeHash, &t.Purpose, &t.ExpiresAt, &t.Consumed, &t.Attempts, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOTPTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// MarkOTPTokenConsumed consumes a token so it can never be used again.
func (r *PostgresRepository) MarkOTPTokenConsumed(ctx context.Context, tokenID uuid.UUID) error {
	_, err := r.db.Exec(ctx, "UPDATE otp_tokens SET consumed = TRUE WHERE id = $1", tokenID)
	return err
}

// UpdateOTPTokenAttempts records a failed code attempt.
func (r *PostgresRepository) UpdateOTPTokenAttempts(ctx context.Context, tokenID uuid.UUID, attempts int) error {
	_, err := r.db.Exec(ctx, "UPDATE otp_tokens SET attempts = $1 WHERE id = $2", attempts, tokenID)
	return err
}

// CountOTPTokensSince counts tokens issued to a destination since a point in
// time. Used as the database fallback for OTP rate limiting.
func (r *PostgresRepository) CountOTPTokensSince(ctx context.Context, destination, purpose string, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		"SELECT count(*) FROM otp_tokens WHERE destination = $1 AND purpose = $2 AND created_at > $3",
		destination, purpose, since,
	).Scan(&n)
	return n, err
}

// DeleteFinishedOTPTokens removes consumed or expired tokens older than cutoff.
func (r *PostgresRepository) DeleteFinishedOTPTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM otp_tokens WHERE consumed = TRUE OR expires_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// postgresTx implements Tx on one pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

// FindAccountForUpdate locks one account row for the remainder of this unit
// of work. A lock-wait timeout maps to ErrLockNotAvailable so callers can
// tell the transient case apart from business failures.
func (t *postgresTx) FindAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := scanAccount(t.tx.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, ErrLockNotAvailable
		}
		return nil, err
	}
	return account, nil
}

// SaveAccountBalance writes a new balance for a locked row.
func (t *postgresTx) SaveAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, "UPDATE accounts SET balance = $1 WHERE id = $2", balance, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreateLedgerEntry appends one immutable ledger entry.
func (t *postgresTx) CreateLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, currency, reference, counterparty)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		entry.ID, entry.AccountID, entry.Direction, entry.Amount, entry.Currency, entry.Reference, entry.Counterparty,
	).Scan(&entry.CreatedAt)
}

// SaveIdempotencyRecord inserts the transfer outcome, translating a unique
// (scope, ikey) violation into ErrDuplicateIdempotencyKey.
func (t *postgresTx) SaveIdempotencyRecord(ctx context.Context, record *domain.IdempotencyRecord) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO idempotency_keys (id, scope, ikey, payload_hash, debit_txn_id, credit_txn_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		record.ID, record.Scope, record.Key, record.PayloadHash, record.DebitEntryID, record.CreditEntryID,
	).Scan(&record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
