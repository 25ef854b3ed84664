/**
 * @description
 * This file defines the core ledger domain models for the banking-service.
 * These structs represent the persisted entities the transfer engine operates
 * on: customer accounts, double-entry ledger records, and idempotency records.
 *
 * @notes
 * - Monetary values use shopspring decimal with a fixed scale of 2, matching
 *   the NUMERIC(19,2) columns. int64 minor units were rejected because the
 *   API contract is decimal amounts with exactly two fractional digits.
 * - Ledger entries are append-only: created once by the transfer engine and
 *   never updated or deleted.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryDirection is the side of a double-entry ledger record.
type EntryDirection string

const (
	EntryDebit  EntryDirection = "DEBIT"
	EntryCredit EntryDirection = "CREDIT"
)

// AccountStatusActive is the only status under which an account can transact.
const AccountStatusActive = "ACTIVE"

// Account represents one customer account row. Balance is mutated exclusively
// by the transfer engine while a row lock is held; currency is immutable
// once set.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Number     string          `json:"number"`
	Currency   string          `json:"currency"` // ISO 4217, 3 letters
	Balance    decimal.Decimal `json:"balance"`
	Status     string          `json:"status"`
}

// LedgerEntry is one half of a double-entry bookkeeping record. Every
// successful transfer produces exactly one DEBIT and one CREDIT entry with
// equal amount and currency, each naming the other account's external number
// as counterparty.
type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Direction    EntryDirection  `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Reference    string          `json:"reference"`
	Counterparty string          `json:"counterparty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LedgerPage is one page of an account's ledger history, newest first.
type LedgerPage struct {
	Entries       []LedgerEntry `json:"content"`
	Page          int           `json:"page"`
	Size          int           `json:"size"`
	TotalElements int64         `json:"total_elements"`
}

// IdempotencyRecord stores the outcome of a completed transfer, keyed by
// (scope, key). Scope partitions client-supplied keys per customer so the
// same key from different customers cannot collide. The payload hash pins
// the key to one canonical request; a later request reusing the key with a
// different payload is a client error, never a silent divergence.
type IdempotencyRecord struct {
	ID            uuid.UUID `json:"id"`
	Scope         string    `json:"scope"` // e.g. "customer:<uuid>"
	Key           string    `json:"key"`
	PayloadHash   string    `json:"payload_hash"`
	DebitEntryID  uuid.UUID `json:"debit_txn_id"`
	CreditEntryID uuid.UUID `json:"credit_txn_id"`
	CreatedAt     time.Time `json:"created_at"`
}
