package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists user accounts. Adjust is the only balance mutation
// primitive: a single-row atomic read-modify-write that fails with
// ErrInsufficientBalance when the result would go negative, so no caller can
// ever observe a negative balance.
type AccountStore interface {
	Create(ctx context.Context, acct Account) error
	Get(ctx context.Context, userID string) (Account, error)
	Adjust(ctx context.Context, userID string, currency Currency, delta float64) (Account, error)
	// Totals returns the live sum of balances per currency and the number of
	// accounts, for reconciliation.
	Totals(ctx context.Context) (map[Currency]float64, int64, error)
}

// MarketStore persists prediction markets.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	// Resolve transitions an open market to resolved with the winning option.
	// Returns ErrNotFound when the market is missing or already resolved.
	Resolve(ctx context.Context, id, winningOption string, at time.Time) error
}

// PositionStore persists market positions.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListActiveByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Position, error)
	// Transition moves a position from one status to another, guarded on the
	// current status so every terminal transition happens at most once.
	// Returns ErrNotActive when the guard does not match.
	Transition(ctx context.Context, id string, from, to PositionStatus, at time.Time) error
}

// OrderStore persists coin/fiat exchange orders.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListPending(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Order, error)
	// MarkFilled transitions a pending order to filled with its execution
	// details. Returns ErrNotPending when the order is no longer pending.
	MarkFilled(ctx context.Context, id string, price, amountOut, fee float64, at time.Time) error
	// UpdateStatus transitions a pending order to a terminal status, guarded
	// on pending. Returns ErrNotPending when the guard does not match.
	UpdateStatus(ctx context.Context, id string, to OrderStatus, at time.Time) error
}

// FastPoolStore persists fast-pool rounds.
type FastPoolStore interface {
	Create(ctx context.Context, p FastPool) error
	GetByID(ctx context.Context, id string) (FastPool, error)
	// ActiveRound returns the active, non-expired round for an asset/category,
	// or ErrNotFound when none exists.
	ActiveRound(ctx context.Context, assetSymbol, category string, now time.Time) (FastPool, error)
	// ListDue returns active rounds whose end has passed.
	ListDue(ctx context.Context, now time.Time) ([]FastPool, error)
	ListActiveByAsset(ctx context.Context, assetSymbol string) ([]FastPool, error)
	ListCompleted(ctx context.Context, opts ListOpts) ([]FastPool, error)
	// MarkProcessing transitions active -> processing, guarded on active.
	// Returns ErrNotFound when another settler got there first.
	MarkProcessing(ctx context.Context, id string) error
	// Reactivate undoes a processing claim (processing -> active) when the
	// closing price could not be read, so a later sweep retries the round.
	Reactivate(ctx context.Context, id string) error
	// Complete transitions processing -> completed, recording the closing
	// price, result, and price change percentage.
	Complete(ctx context.Context, id string, closingPrice float64, result FastPoolResult, changePct float64) error
	SetPaused(ctx context.Context, id string, paused bool) error
}

// FastPoolBetStore persists fast-pool bets.
type FastPoolBetStore interface {
	Create(ctx context.Context, b FastPoolBet) error
	GetByID(ctx context.Context, id string) (FastPoolBet, error)
	ListUnprocessedByPool(ctx context.Context, poolID string) ([]FastPoolBet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]FastPoolBet, error)
	// MarkProcessed sets processed=true and the final payout amount, guarded
	// on processed=false. Returns ErrAlreadyProcessed when the guard does not
	// match, which is how re-settlement stays idempotent per bet.
	MarkProcessed(ctx context.Context, id string, payout float64) error
}

// LedgerStore persists the append-only transaction ledger. Remove exists only
// for compensation: undoing a just-appended row when a later step of the same
// atomic sequence fails. It must never be used outside a rollback path.
type LedgerStore interface {
	Append(ctx context.Context, tx LedgerTransaction) error
	Remove(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]LedgerTransaction, error)
	// Totals returns credits minus debits per currency over the whole ledger.
	Totals(ctx context.Context) (map[Currency]float64, error)
}

// ReportStore persists reconciliation reports, append-only.
type ReportStore interface {
	Insert(ctx context.Context, r ReconciliationReport) error
	ListRecent(ctx context.Context, limit int) ([]ReconciliationReport, error)
}
