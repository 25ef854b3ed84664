package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tsb/banking-service/internal/domain"
	"github.com/tsb/banking-service/internal/store"
)

func TestAccountsForCustomerListsOnlyOwnAccounts(t *testing.T) {
	f := newTransferFixture()

	accounts, err := f.service.AccountsForCustomer(context.Background(), f.customer)
	if err != nil {
		t.Fatalf("AccountsForCustomer() error = %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(accounts))
	}
	for _, account := range accounts {
		if account.CustomerID != f.customer {
			t.Fatalf("listing leaked account %s owned by %s", account.ID, account.CustomerID)
		}
	}
}

func TestTransactionsForAccountPaginatesNewestFirst(t *testing.T) {
	f := newTransferFixture()

	// Five committed transfers produce five debit entries on checking.
	for i := 0; i < 5; i++ {
		_, err := f.service.Transfer(context.Background(), domain.TransferRequest{
			CustomerID:     f.customer,
			FromAccountID:  f.checking,
			ToAccountID:    f.savings,
			Amount:         money("1.00"),
			Currency:       "USD",
			IdempotencyKey: fmt.Sprintf("hist-%d", i),
			Memo:           fmt.Sprintf("payment %d", i),
		})
		if err != nil {
			t.Fatalf("Transfer() error = %v", err)
		}
	}

	page, err := f.service.TransactionsForAccount(context.Background(), f.customer, f.checking, nil, nil, 0, 2)
	if err != nil {
		t.Fatalf("TransactionsForAccount() error = %v", err)
	}
	if page.TotalElements != 5 {
		t.Fatalf("total = %d, want 5", page.TotalElements)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Entries))
	}
	if page.Entries[0].Reference != "payment 4" || page.Entries[1].Reference != "payment 3" {
		t.Fatalf("entries not newest first: %q, %q", page.Entries[0].Reference, page.Entries[1].Reference)
	}

	last, err := f.service.TransactionsForAccount(context.Background(), f.customer, f.checking, nil, nil, 2, 2)
	if err != nil {
		t.Fatalf("TransactionsForAccount() error = %v", err)
	}
	if len(last.Entries) != 1 {
		t.Fatalf("final page size = %d, want 1", len(last.Entries))
	}
	if last.Entries[0].Reference != "payment 0" {
		t.Fatalf("final page entry = %q, want %q", last.Entries[0].Reference, "payment 0")
	}
}

func TestTransactionsForAccountAppliesTimeRange(t *testing.T) {
	f := newTransferFixture()

	if _, err := f.service.Transfer(context.Background(), f.request("5.00")); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	past := time.Now().UTC().Add(-48 * time.Hour)
	cutoff := past.Add(time.Hour)
	page, err := f.service.TransactionsForAccount(context.Background(), f.customer, f.checking, &past, &cutoff, 0, 10)
	if err != nil {
		t.Fatalf("TransactionsForAccount() error = %v", err)
	}
	if page.TotalElements != 0 || len(page.Entries) != 0 {
		t.Fatalf("window in the past matched %d entries", page.TotalElements)
	}
}

func TestTransactionsForAccountDefaultsAndClampsPaging(t *testing.T) {
	f := newTransferFixture()

	page, err := f.service.TransactionsForAccount(context.Background(), f.customer, f.checking, nil, nil, -3, 100000)
	if err != nil {
		t.Fatalf("TransactionsForAccount() error = %v", err)
	}
	if page.Page != 0 {
		t.Fatalf("negative page not clamped: %d", page.Page)
	}
	if page.Size != maxHistoryPageSize {
		t.Fatalf("oversized page not clamped: %d, want %d", page.Size, maxHistoryPageSize)
	}
}

func TestTransactionsForAccountRejectsForeignAccount(t *testing.T) {
	f := newTransferFixture()

	_, err := f.service.TransactionsForAccount(context.Background(), f.customer, f.foreign, nil, nil, 0, 10)
	if !errors.Is(err, domain.ErrOwnership) {
		t.Fatalf("TransactionsForAccount() error = %v, want ErrOwnership", err)
	}
}

func TestTransactionsForAccountUnknownAccount(t *testing.T) {
	f := newTransferFixture()

	_, err := f.service.TransactionsForAccount(context.Background(), f.customer, uuid.New(), nil, nil, 0, 10)
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("TransactionsForAccount() error = %v, want ErrAccountNotFound", err)
	}
}
