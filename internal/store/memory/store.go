// Package memory implements the domain store and cache interfaces with
// mutex-guarded maps. It backs the dev operating mode and the package tests;
// production runs on the postgres and redis implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
)

// AccountStore is an in-memory domain.AccountStore.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

// Create inserts a new account.
func (s *AccountStore) Create(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.UserID]; ok {
		return domain.ErrAlreadyExists
	}
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[acct.UserID] = acct
	return nil
}

// Get returns the account for userID.
func (s *AccountStore) Get(_ context.Context, userID string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return acct, nil
}

// Adjust applies delta to one balance atomically, refusing results below zero.
func (s *AccountStore) Adjust(_ context.Context, userID string, currency domain.Currency, delta float64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}

	next := acct.Balance(currency) + delta
	if next < 0 {
		return domain.Account{}, domain.ErrInsufficientBalance
	}

	if currency == domain.CurrencyFiat {
		acct.FiatBalance = next
	} else {
		acct.AvailableBalance = next
	}
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = acct
	return acct, nil
}

// Totals sums all balances per currency.
func (s *AccountStore) Totals(_ context.Context) (map[domain.Currency]float64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := map[domain.Currency]float64{
		domain.CurrencyCoin: 0,
		domain.CurrencyFiat: 0,
	}
	for _, acct := range s.accounts {
		totals[domain.CurrencyCoin] += acct.AvailableBalance
		totals[domain.CurrencyFiat] += acct.FiatBalance
	}
	return totals, int64(len(s.accounts)), nil
}

// LedgerStore is an in-memory append-only ledger.
type LedgerStore struct {
	mu  sync.Mutex
	txs []domain.LedgerTransaction
}

// NewLedgerStore creates an empty LedgerStore.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

// Append records a transaction.
func (s *LedgerStore) Append(_ context.Context, tx domain.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.txs = append(s.txs, tx)
	return nil
}

// Remove deletes a transaction by ID. Compensation path only.
func (s *LedgerStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tx := range s.txs {
		if tx.ID == id {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// ListByUser returns a user's transactions, newest first.
func (s *LedgerStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.LedgerTransaction
	for _, tx := range s.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// Totals returns credits minus debits per currency.
func (s *LedgerStore) Totals(_ context.Context) (map[domain.Currency]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := map[domain.Currency]float64{
		domain.CurrencyCoin: 0,
		domain.CurrencyFiat: 0,
	}
	for _, tx := range s.txs {
		totals[tx.Currency] += tx.Signed()
	}
	return totals, nil
}

// Count returns the number of ledger rows, for tests and diagnostics.
func (s *LedgerStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
