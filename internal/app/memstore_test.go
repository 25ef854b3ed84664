package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tsb/banking-service/internal/domain"
	"github.com/tsb/banking-service/internal/store"
)

// memStore is an in-memory store.Repository with real per-account row locks,
// so the transfer engine's locking and unit-of-work behavior can be tested
// under genuine goroutine concurrency. Methods the transfer tests do not
// need come from the embedded nil interface and panic if called.
type memStore struct {
	store.Repository

	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
	entries  []domain.LedgerEntry
	idem     map[string]domain.IdempotencyRecord
	rowLocks map[uuid.UUID]*sync.Mutex
	clock    time.Time

	// winnerAtSave, when set, makes the next SaveIdempotencyRecord behave as
	// if a concurrent transfer with the same key committed first.
	winnerAtSave *domain.IdempotencyRecord
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*domain.Account),
		idem:     make(map[string]domain.IdempotencyRecord),
		rowLocks: make(map[uuid.UUID]*sync.Mutex),
		// Start well in the past so entry timestamps, which advance one
		// millisecond per entry, never postdate the service's time.Now()
		// default upper bound when it paginates history.
		clock:    time.Now().UTC().Add(-time.Hour),
	}
}

func (m *memStore) addAccount(a domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := a
	m.accounts[a.ID] = &copied
	m.rowLocks[a.ID] = &sync.Mutex{}
}

func idemMapKey(scope, key string) string { return scope + "\x00" + key }

func (m *memStore) Begin(ctx context.Context) (store.Tx, error) {
	return &memTx{parent: m, balances: make(map[uuid.UUID]decimal.Decimal)}, nil
}

func (m *memStore) FindAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *memStore) FindAccountsByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Account
	for _, account := range m.accounts {
		if account.CustomerID == customerID {
			out = append(out, *account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) FindLedgerEntries(ctx context.Context, accountID uuid.UUID, from, to time.Time, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.LedgerEntry
	for _, entry := range m.entries {
		if entry.AccountID == accountID && !entry.CreatedAt.Before(from) && !entry.CreatedAt.After(to) {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *memStore) FindIdempotencyRecord(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.idem[idemMapKey(scope, key)]
	if !ok {
		return nil, store.ErrIdempotencyRecordNotFound
	}
	copied := record
	return &copied, nil
}

func (m *memStore) ledgerEntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memStore) balance(id uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Balance
}

// memTx buffers all writes until Commit, mirroring the visibility rules of a
// database transaction, and holds row locks taken by FindAccountForUpdate
// until the unit of work ends.
type memTx struct {
	parent   *memStore
	locked   []uuid.UUID
	balances map[uuid.UUID]decimal.Decimal
	entries  []domain.LedgerEntry
	idem     []domain.IdempotencyRecord
	done     bool
}

func (t *memTx) FindAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	t.parent.mu.Lock()
	rowLock, ok := t.parent.rowLocks[id]
	t.parent.mu.Unlock()
	if !ok {
		return nil, store.ErrAccountNotFound
	}

	rowLock.Lock()
	t.locked = append(t.locked, id)

	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	copied := *t.parent.accounts[id]
	return &copied, nil
}

func (t *memTx) SaveAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	t.balances[id] = balance
	return nil
}

func (t *memTx) CreateLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	t.entries = append(t.entries, *entry)
	return nil
}

func (t *memTx) SaveIdempotencyRecord(ctx context.Context, record *domain.IdempotencyRecord) error {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	if winner := t.parent.winnerAtSave; winner != nil {
		t.parent.idem[idemMapKey(winner.Scope, winner.Key)] = *winner
		t.parent.winnerAtSave = nil
		return store.ErrDuplicateIdempotencyKey
	}
	if _, exists := t.parent.idem[idemMapKey(record.Scope, record.Key)]; exists {
		return store.ErrDuplicateIdempotencyKey
	}
	t.idem = append(t.idem, *record)
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.parent.mu.Lock()
	for id, balance := range t.balances {
		t.parent.accounts[id].Balance = balance
	}
	for _, entry := range t.entries {
		t.parent.clock = t.parent.clock.Add(time.Millisecond)
		entry.CreatedAt = t.parent.clock
		t.parent.entries = append(t.parent.entries, entry)
	}
	for _, record := range t.idem {
		record.CreatedAt = t.parent.clock
		t.parent.idem[idemMapKey(record.Scope, record.Key)] = record
	}
	t.parent.mu.Unlock()
	t.finish()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *memTx) finish() {
	t.done = true
	t.parent.mu.Lock()
	locks := make([]*sync.Mutex, 0, len(t.locked))
	for i := len(t.locked) - 1; i >= 0; i-- {
		locks = append(locks, t.parent.rowLocks[t.locked[i]])
	}
	t.parent.mu.Unlock()
	for _, rowLock := range locks {
		rowLock.Unlock()
	}
}
