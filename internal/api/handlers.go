/**
 * @description
 * This file contains the HTTP handlers for transfers, account listing, and
 * transaction history. Handlers parse incoming requests, call the application
 * service, and translate outcomes into HTTP responses. They act as the bridge
 * between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/shopspring/decimal: Amount parsing.
 * - internal/app, internal/domain: Service logic and models.
 */

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tsb/banking-service/internal/app"
	"github.com/tsb/banking-service/internal/domain"
)

// idempotencyKeyHeader carries the client-chosen transfer idempotency key.
const idempotencyKeyHeader = "Idempotency-Key"

// BankingHandlers holds the application service that handlers will use.
type BankingHandlers struct {
	service *app.Service
	logger  *zap.Logger
}

// NewBankingHandlers creates a new instance of BankingHandlers.
func NewBankingHandlers(service *app.Service, logger *zap.Logger) *BankingHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BankingHandlers{service: service, logger: logger}
}

type transferRequestBody struct {
	FromAccountID  string `json:"from_account_id"`
	ToAccountID    string `json:"to_account_id"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Memo           string `json:"memo,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TransferHandler handles requests to move funds between two accounts.
func (h *BankingHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := GetCustomerID(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "Could not get customer ID from context")
		return
	}

	var body transferRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	fromID, err := uuid.Parse(body.FromAccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from_account_id")
		return
	}
	toID, err := uuid.Parse(body.ToAccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to_account_id")
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(body.Amount))
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be a positive decimal number")
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(body.Currency))
	if len(currency) != 3 {
		writeError(w, http.StatusBadRequest, "Currency must be a 3-letter code")
		return
	}

	// The key is optional; without one the transfer simply executes without
	// replay protection.
	idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(body.IdempotencyKey)
	}

	result, err := h.service.Transfer(r.Context(), domain.TransferRequest{
		CustomerID:     customerID,
		FromAccountID:  fromID,
		ToAccountID:    toID,
		Amount:         amount,
		Currency:       currency,
		Memo:           strings.TrimSpace(body.Memo),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	username, _ := GetUsername(r.Context())
	h.logger.Info("transfer accepted",
		zap.String("username", username),
		zap.String("debit_entry_id", result.DebitEntryID.String()),
		zap.String("credit_entry_id", result.CreditEntryID.String()),
	)

	writeJSON(w, http.StatusCreated, result)
}

// ListAccountsHandler returns all accounts owned by the authenticated customer.
func (h *BankingHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := GetCustomerID(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "Could not get customer ID from context")
		return
	}

	accounts, err := h.service.AccountsForCustomer(r.Context(), customerID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// TransactionHistoryHandler returns one page of an account's ledger history.
// Optional query parameters: from and to (RFC 3339), page, and size.
func (h *BankingHandlers) TransactionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := GetCustomerID(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "Could not get customer ID from context")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	query := r.URL.Query()
	from, err := parseTimeParam(query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from timestamp; use RFC 3339")
		return
	}
	to, err := parseTimeParam(query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to timestamp; use RFC 3339")
		return
	}
	page := parseIntParam(query.Get("page"), 0)
	size := parseIntParam(query.Get("size"), 0)

	history, err := h.service.TransactionsForAccount(r.Context(), customerID, accountID, from, to, page, size)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func parseTimeParam(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseIntParam(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
