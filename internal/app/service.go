/**
 * @description
 * This file contains the funds transfer engine, the core business logic of
 * the banking-service. `Service.Transfer` moves money between two accounts
 * of one customer under concurrent access while preserving the ledger
 * invariants: no negative balances, conserved total value, matching
 * currencies, and correct ownership.
 *
 * Key mechanisms:
 * - Exactly-once execution per client idempotency key, scoped per customer
 *   and pinned to a canonical payload hash.
 * - Deadlock avoidance by locking the two account rows in a fixed global
 *   order (ascending account id), independent of transfer direction.
 * - One explicit unit of work spanning balances, ledger entries, and the
 *   idempotency record; nothing partial is ever visible.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Fixed-point money arithmetic.
 * - internal/domain, internal/store: Domain models and the unit-of-work contract.
 * - pkg/rabbitmq: Best-effort transfer.completed events.
 */

package app

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsb/banking-service/internal/domain"
	"github.com/tsb/banking-service/internal/store"
	"github.com/tsb/banking-service/pkg/rabbitmq"
)

// defaultTransferReference is used when the client supplies no memo.
const defaultTransferReference = "Internal transfer"

// Service provides the transfer engine and account/ledger queries.
type Service struct {
	repo   store.Repository
	events rabbitmq.Publisher
	logger *zap.Logger
}

// NewService creates a new Service. events may be nil when the broker is
// unavailable; transfer outcomes are then not announced but stay correct.
func NewService(repo store.Repository, events rabbitmq.Publisher, logger *zap.Logger) *Service {
	return &Service{repo: repo, events: events, logger: logger}
}

// idempotencyScope partitions client keys per customer so the same key from
// different customers cannot collide.
func idempotencyScope(customerID uuid.UUID) string {
	return "customer:" + customerID.String()
}

// transferPayloadHash computes the canonical hash pinning an idempotency key
// to one request payload. Each field is written length-prefixed, so a memo
// containing delimiter-like substrings cannot collide with a different
// request whose adjacent fields happen to concatenate identically.
func transferPayloadHash(req domain.TransferRequest) string {
	h := sha256.New()
	for _, field := range []string{
		req.FromAccountID.String(),
		req.ToAccountID.String(),
		req.Amount.StringFixed(2),
		req.Currency,
		req.Memo,
	} {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(field)))
		h.Write(length[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Transfer executes one funds transfer as a single atomic unit of work.
//
// Validation order is fixed: same-account and amount checks run before any
// lock is taken; ownership, currency, and funds checks run on the
// freshly locked rows. Any failure aborts before a mutation becomes visible.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	if req.FromAccountID == req.ToAccountID {
		return nil, domain.ErrSameAccount
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}
	if req.Amount.Exponent() < -2 {
		return nil, domain.ErrAmountPrecision
	}

	scope := idempotencyScope(req.CustomerID)

	// Fast path: a recorded outcome for this (scope, key) means the transfer
	// already committed; replay its result against current balances.
	if req.IdempotencyKey != "" {
		record, err := s.repo.FindIdempotencyRecord(ctx, scope, req.IdempotencyKey)
		if err == nil {
			return s.replayRecordedTransfer(ctx, req, record)
		}
		if !errors.Is(err, store.ErrIdempotencyRecordNotFound) {
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both rows in ascending id order. Any two concurrent transfers
	// over an overlapping pair request locks in the same relative order, so
	// no wait cycle can form. Business meaning is re-derived from the
	// request below; lock order carries none.
	firstID, secondID := req.FromAccountID, req.ToAccountID
	if secondID.String() < firstID.String() {
		firstID, secondID = secondID, firstID
	}
	first, err := tx.FindAccountForUpdate(ctx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := tx.FindAccountForUpdate(ctx, secondID)
	if err != nil {
		return nil, err
	}

	from, to := first, second
	if from.ID != req.FromAccountID {
		from, to = second, first
	}

	if from.CustomerID != req.CustomerID || to.CustomerID != req.CustomerID {
		return nil, domain.ErrOwnership
	}
	if from.Status != domain.AccountStatusActive || to.Status != domain.AccountStatusActive {
		return nil, domain.ErrAccountInactive
	}
	if from.Currency != req.Currency || to.Currency != req.Currency {
		return nil, domain.ErrCurrencyMismatch
	}
	if from.Balance.LessThan(req.Amount) {
		return nil, domain.ErrInsufficientFunds
	}

	from.Balance = from.Balance.Sub(req.Amount)
	to.Balance = to.Balance.Add(req.Amount)
	if err := tx.SaveAccountBalance(ctx, from.ID, from.Balance); err != nil {
		return nil, fmt.Errorf("failed to persist source balance: %w", err)
	}
	if err := tx.SaveAccountBalance(ctx, to.ID, to.Balance); err != nil {
		return nil, fmt.Errorf("failed to persist destination balance: %w", err)
	}

	reference := req.Memo
	if reference == "" {
		reference = defaultTransferReference
	}
	debit := &domain.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    from.ID,
		Direction:    domain.EntryDebit,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Reference:    reference,
		Counterparty: to.Number,
	}
	credit := &domain.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    to.ID,
		Direction:    domain.EntryCredit,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Reference:    reference,
		Counterparty: from.Number,
	}
	if err := tx.CreateLedgerEntry(ctx, debit); err != nil {
		return nil, fmt.Errorf("failed to append debit entry: %w", err)
	}
	if err := tx.CreateLedgerEntry(ctx, credit); err != nil {
		return nil, fmt.Errorf("failed to append credit entry: %w", err)
	}

	if req.IdempotencyKey != "" {
		record := &domain.IdempotencyRecord{
			ID:            uuid.New(),
			Scope:         scope,
			Key:           req.IdempotencyKey,
			PayloadHash:   transferPayloadHash(req),
			DebitEntryID:  debit.ID,
			CreditEntryID: credit.ID,
		}
		if err := tx.SaveIdempotencyRecord(ctx, record); err != nil {
			if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
				// A concurrent request with the same key won the race and has
				// already committed. Discard our work and replay its outcome.
				if rbErr := tx.Rollback(ctx); rbErr != nil {
					s.logger.Warn("rollback after idempotency race failed", zap.Error(rbErr))
				}
				winner, findErr := s.repo.FindIdempotencyRecord(ctx, scope, req.IdempotencyKey)
				if findErr != nil {
					return nil, fmt.Errorf("failed to load winning idempotency record: %w", findErr)
				}
				return s.replayRecordedTransfer(ctx, req, winner)
			}
			return nil, fmt.Errorf("failed to record idempotency outcome: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}

	s.publishTransferCompleted(ctx, req, debit.ID, credit.ID)

	s.logger.Info("transfer committed",
		zap.String("from_account", from.ID.String()),
		zap.String("to_account", to.ID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("currency", req.Currency),
	)

	return &domain.TransferResult{
		DebitEntryID:  debit.ID,
		CreditEntryID: credit.ID,
		FromBalance:   from.Balance,
		ToBalance:     to.Balance,
	}, nil
}

// replayRecordedTransfer returns the previously committed outcome for an
// idempotency record, after verifying the key is being reused with the same
// payload. Balances are re-read from committed state; no locks are needed.
func (s *Service) replayRecordedTransfer(ctx context.Context, req domain.TransferRequest, record *domain.IdempotencyRecord) (*domain.TransferResult, error) {
	if record.PayloadHash != transferPayloadHash(req) {
		return nil, domain.ErrIdempotencyConflict
	}
	from, err := s.repo.FindAccount(ctx, req.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.repo.FindAccount(ctx, req.ToAccountID)
	if err != nil {
		return nil, err
	}
	return &domain.TransferResult{
		DebitEntryID:  record.DebitEntryID,
		CreditEntryID: record.CreditEntryID,
		FromBalance:   from.Balance,
		ToBalance:     to.Balance,
	}, nil
}

// publishTransferCompleted announces a committed transfer. Failures are
// logged and swallowed; the transfer outcome never depends on the broker.
func (s *Service) publishTransferCompleted(ctx context.Context, req domain.TransferRequest, debitID, creditID uuid.UUID) {
	if s.events == nil {
		return
	}
	event := rabbitmq.TransferCompletedEvent{
		CustomerID:    req.CustomerID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		DebitEntryID:  debitID,
		CreditEntryID: creditID,
	}
	if err := s.events.PublishTransferCompleted(ctx, event); err != nil {
		s.logger.Warn("transfer.completed publish failed", zap.Error(err))
	}
}
