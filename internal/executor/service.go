// Package executor validates and executes coin/fiat exchange orders and
// market position flow against the single reference price. Every multi-step
// mutation runs as a compensated sequence: earlier steps are undone in
// reverse order when a later step fails, so no reader ever observes a debited
// balance without its matching ledger row.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/riozmarkets/settlement/internal/domain"
)

// Config holds the executor's fee rates and control thresholds.
type Config struct {
	// TradeFeeRate is the fraction of the input amount charged on every
	// market and limit fill.
	TradeFeeRate float64
	// CancelFeeRate is the penalty fraction withheld when a user cancels a
	// resting limit order.
	CancelFeeRate float64
	// MaxPriceAge is the freshness gate: price samples older than this reject
	// any execution that depends on them.
	MaxPriceAge time.Duration
	// OrderRateLimit / OrderRateWindow bound order placement per user.
	OrderRateLimit  int
	OrderRateWindow time.Duration
}

// Service is the order executor.
type Service struct {
	accounts  domain.AccountStore
	orders    domain.OrderStore
	markets   domain.MarketStore
	positions domain.PositionStore
	ledger    domain.LedgerStore
	limiter   domain.RateLimiter
	bus       domain.SignalBus
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a Service with all required dependencies.
func NewService(
	accounts domain.AccountStore,
	orders domain.OrderStore,
	markets domain.MarketStore,
	positions domain.PositionStore,
	ledger domain.LedgerStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.OrderRateLimit == 0 {
		cfg.OrderRateLimit = 10
	}
	if cfg.OrderRateWindow == 0 {
		cfg.OrderRateWindow = time.Second
	}
	return &Service{
		accounts:  accounts,
		orders:    orders,
		markets:   markets,
		positions: positions,
		ledger:    ledger,
		limiter:   limiter,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// MarketOrderResult reports a filled market order back to the caller.
type MarketOrderResult struct {
	OrderID         string  `json:"order_id"`
	AmountConverted float64 `json:"amount_converted"`
	FeeCharged      float64 `json:"fee_charged"`
	CoinBalance     float64 `json:"coin_balance"`
	FiatBalance     float64 `json:"fiat_balance"`
}

// round2 rounds to 2 decimals, the resolution of every ledger amount.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// normalizeAmount snaps a caller-supplied amount to the ledger's two-decimal
// grain before any balance moves. Stored balances are rounded to cents, so an
// unrounded debit would drift the ledger away from the account by fractions
// of a cent. Anything below one cent is rejected outright.
func normalizeAmount(x float64) (float64, error) {
	r := round2(x)
	if r < 0.01 {
		return 0, domain.ErrInvalidAmount
	}
	return r, nil
}

// inputCurrency returns the currency debited for a given order side.
func inputCurrency(side domain.OrderSide) domain.Currency {
	if side == domain.OrderSideBuy {
		return domain.CurrencyFiat
	}
	return domain.CurrencyCoin
}

// outputFor converts a net input amount at the reference price.
func outputFor(side domain.OrderSide, netIn, price float64) float64 {
	if side == domain.OrderSideBuy {
		return round2(netIn / price)
	}
	return round2(netIn * price)
}

// undoStack collects compensation steps for a multi-step mutation. On
// failure, Unwind reverts everything done so far in reverse order.
type undoStack []func(context.Context)

func (u undoStack) Unwind(ctx context.Context) {
	for i := len(u) - 1; i >= 0; i-- {
		u[i](ctx)
	}
}

// ExecuteMarketOrder converts amount of the input currency at the given
// reference price, charging the trade fee on the input. Debit, credit, both
// ledger rows, and the filled order record commit together or not at all.
func (s *Service) ExecuteMarketOrder(ctx context.Context, userID string, side domain.OrderSide, amount float64, sample domain.PriceSample) (MarketOrderResult, error) {
	amount, err := normalizeAmount(amount)
	if err != nil {
		return MarketOrderResult{}, err
	}
	if !sample.Fresh(s.cfg.MaxPriceAge, time.Now().UTC()) {
		return MarketOrderResult{}, fmt.Errorf("executor: sample for %s aged %s: %w",
			sample.Symbol, sample.Age(time.Now().UTC()), domain.ErrStalePrice)
	}
	if err := s.allowOrder(ctx, userID); err != nil {
		return MarketOrderResult{}, err
	}

	curIn := inputCurrency(side)
	curOut := domain.CurrencyCoin
	if side == domain.OrderSideSell {
		curOut = domain.CurrencyFiat
	}

	fee := round2(amount * s.cfg.TradeFeeRate)
	out := outputFor(side, amount-fee, sample.Price)
	now := time.Now().UTC()
	orderID := uuid.New().String()

	var undo undoStack

	// 1. Debit the input currency. Insufficient balance rejects here with no
	// state change at all.
	if _, err := s.accounts.Adjust(ctx, userID, curIn, -amount); err != nil {
		return MarketOrderResult{}, fmt.Errorf("executor: debit %s: %w", curIn, err)
	}
	undo = append(undo, func(ctx context.Context) {
		if _, err := s.accounts.Adjust(ctx, userID, curIn, amount); err != nil {
			s.logger.ErrorContext(ctx, "rollback re-credit failed",
				slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	})

	// 2. Matching debit ledger row.
	debitTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Direction:   domain.TxDebit,
		Amount:      amount,
		Currency:    curIn,
		Description: fmt.Sprintf("market %s order %s", side, orderID),
		RefID:       &orderID,
		CreatedAt:   now,
	}
	if err := s.ledger.Append(ctx, debitTx); err != nil {
		undo.Unwind(ctx)
		return MarketOrderResult{}, fmt.Errorf("executor: append debit tx: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.ledger.Remove(ctx, debitTx.ID); err != nil {
			s.logger.ErrorContext(ctx, "rollback ledger remove failed",
				slog.String("tx_id", debitTx.ID), slog.String("error", err.Error()))
		}
	})

	// 3. Credit the output currency.
	acct, err := s.accounts.Adjust(ctx, userID, curOut, out)
	if err != nil {
		undo.Unwind(ctx)
		return MarketOrderResult{}, fmt.Errorf("executor: credit %s: %w", curOut, err)
	}
	undo = append(undo, func(ctx context.Context) {
		if _, err := s.accounts.Adjust(ctx, userID, curOut, -out); err != nil {
			s.logger.ErrorContext(ctx, "rollback debit failed",
				slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	})

	// 4. Matching credit ledger row.
	creditTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Direction:   domain.TxCredit,
		Amount:      out,
		Currency:    curOut,
		Description: fmt.Sprintf("market %s fill %s", side, orderID),
		RefID:       &orderID,
		CreatedAt:   now,
	}
	if err := s.ledger.Append(ctx, creditTx); err != nil {
		undo.Unwind(ctx)
		return MarketOrderResult{}, fmt.Errorf("executor: append credit tx: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.ledger.Remove(ctx, creditTx.ID); err != nil {
			s.logger.ErrorContext(ctx, "rollback ledger remove failed",
				slog.String("tx_id", creditTx.ID), slog.String("error", err.Error()))
		}
	})

	// 5. Filled order record.
	order := domain.Order{
		ID:         orderID,
		UserID:     userID,
		Side:       side,
		Type:       domain.OrderTypeMarket,
		AmountIn:   amount,
		CurrencyIn: curIn,
		AmountOut:  out,
		Price:      sample.Price,
		Fee:        fee,
		Status:     domain.OrderStatusFilled,
		CreatedAt:  now,
		ExecutedAt: &now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		undo.Unwind(ctx)
		return MarketOrderResult{}, fmt.Errorf("executor: create order record: %w", err)
	}

	s.publish(ctx, domain.ChannelBalances, domain.NewEvent(domain.EventBalanceChanged, userID, map[string]any{
		"coin_balance": acct.AvailableBalance,
		"fiat_balance": acct.FiatBalance,
	}))
	s.publish(ctx, domain.ChannelMarkets, domain.NewEvent(domain.EventOrderFilled, userID, map[string]any{
		"order_id": orderID,
		"side":     string(side),
		"price":    sample.Price,
	}))

	return MarketOrderResult{
		OrderID:         orderID,
		AmountConverted: out,
		FeeCharged:      fee,
		CoinBalance:     acct.AvailableBalance,
		FiatBalance:     acct.FiatBalance,
	}, nil
}

func (s *Service) allowOrder(ctx context.Context, userID string) error {
	allowed, err := s.limiter.Allow(ctx, "orders:"+userID, s.cfg.OrderRateLimit, s.cfg.OrderRateWindow)
	if err != nil {
		return fmt.Errorf("executor: rate limiter: %w", err)
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

// publish emits a domain event after the corresponding write committed.
// Delivery failures are logged, never propagated: the bus is a notification
// channel, not the source of truth.
func (s *Service) publish(ctx context.Context, channel string, ev domain.Event) {
	if err := s.bus.Publish(ctx, channel, ev.Marshal()); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// isAlreadyDone reports whether a store guard failure means someone else
// already finished the transition, which batch paths treat as a skip.
func isAlreadyDone(err error) bool {
	return errors.Is(err, domain.ErrNotPending) ||
		errors.Is(err, domain.ErrNotActive) ||
		errors.Is(err, domain.ErrAlreadyProcessed)
}
