package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tsb/banking-service/internal/domain"
)

const (
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 200
)

// AccountsForCustomer lists all accounts owned by a customer.
func (s *Service) AccountsForCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error) {
	return s.repo.FindAccountsByCustomer(ctx, customerID)
}

// TransactionsForAccount returns one page of an account's ledger history
// within an optional inclusive time range. A nil from means the epoch, a nil
// to means now. The account must exist and belong to the caller.
func (s *Service) TransactionsForAccount(ctx context.Context, customerID, accountID uuid.UUID, from, to *time.Time, page, size int) (*domain.LedgerPage, error) {
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.CustomerID != customerID {
		return nil, domain.ErrOwnership
	}

	rangeFrom := time.Unix(0, 0).UTC()
	if from != nil {
		rangeFrom = *from
	}
	rangeTo := time.Now().UTC()
	if to != nil {
		rangeTo = *to
	}

	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultHistoryPageSize
	}
	if size > maxHistoryPageSize {
		size = maxHistoryPageSize
	}

	entries, total, err := s.repo.FindLedgerEntries(ctx, accountID, rangeFrom, rangeTo, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger history: %w", err)
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return &domain.LedgerPage{
		Entries:       entries,
		Page:          page,
		Size:          size,
		TotalElements: total,
	}, nil
}
