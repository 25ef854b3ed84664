package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferRequest is the ephemeral input to the transfer engine. It is never
// persisted as an entity; its durable trace is the pair of ledger entries and
// the optional idempotency record.
type TransferRequest struct {
	CustomerID     uuid.UUID
	FromAccountID  uuid.UUID
	ToAccountID    uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	Memo           string
	IdempotencyKey string
}

// TransferResult reports a committed (or replayed) transfer: the two ledger
// entry ids and the post-transfer balances of both accounts.
type TransferResult struct {
	DebitEntryID  uuid.UUID       `json:"debit_txn_id"`
	CreditEntryID uuid.UUID       `json:"credit_txn_id"`
	FromBalance   decimal.Decimal `json:"from_balance"`
	ToBalance     decimal.Decimal `json:"to_balance"`
}
