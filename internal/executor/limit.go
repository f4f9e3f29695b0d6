package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/riozmarkets/settlement/internal/domain"
)

// LimitOrderResult reports a resting limit order back to the caller.
type LimitOrderResult struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
}

// PlaceLimitOrder reserves the input amount and records a pending order. No
// conversion happens until a batch execution pass matches the order against a
// fresh reference price.
func (s *Service) PlaceLimitOrder(ctx context.Context, userID string, side domain.OrderSide, amount, limitPrice float64) (LimitOrderResult, error) {
	if limitPrice <= 0 {
		return LimitOrderResult{}, domain.ErrInvalidAmount
	}
	amount, err := normalizeAmount(amount)
	if err != nil {
		return LimitOrderResult{}, err
	}
	if err := s.allowOrder(ctx, userID); err != nil {
		return LimitOrderResult{}, err
	}

	curIn := inputCurrency(side)
	now := time.Now().UTC()
	orderID := uuid.New().String()

	var undo undoStack

	if _, err := s.accounts.Adjust(ctx, userID, curIn, -amount); err != nil {
		return LimitOrderResult{}, fmt.Errorf("executor: reserve %s: %w", curIn, err)
	}
	undo = append(undo, func(ctx context.Context) {
		if _, err := s.accounts.Adjust(ctx, userID, curIn, amount); err != nil {
			s.logger.ErrorContext(ctx, "rollback reserve release failed",
				slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	})

	reserveTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Direction:   domain.TxDebit,
		Amount:      amount,
		Currency:    curIn,
		Description: fmt.Sprintf("limit %s reserve %s", side, orderID),
		RefID:       &orderID,
		CreatedAt:   now,
	}
	if err := s.ledger.Append(ctx, reserveTx); err != nil {
		undo.Unwind(ctx)
		return LimitOrderResult{}, fmt.Errorf("executor: append reserve tx: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.ledger.Remove(ctx, reserveTx.ID); err != nil {
			s.logger.ErrorContext(ctx, "rollback ledger remove failed",
				slog.String("tx_id", reserveTx.ID), slog.String("error", err.Error()))
		}
	})

	order := domain.Order{
		ID:         orderID,
		UserID:     userID,
		Side:       side,
		Type:       domain.OrderTypeLimit,
		AmountIn:   amount,
		CurrencyIn: curIn,
		LimitPrice: limitPrice,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		undo.Unwind(ctx)
		return LimitOrderResult{}, fmt.Errorf("executor: create limit order: %w", err)
	}

	s.publish(ctx, domain.ChannelBalances, domain.NewEvent(domain.EventBalanceChanged, userID, nil))

	return LimitOrderResult{OrderID: orderID, Status: domain.OrderStatusPending}, nil
}

// limitMatches reports whether a resting order executes at the reference
// price: buys fill at or below their limit, sells at or above.
func limitMatches(o domain.Order, price float64) bool {
	if o.Side == domain.OrderSideBuy {
		return price <= o.LimitPrice
	}
	return price >= o.LimitPrice
}

// ExecuteLimitBatch runs one execution pass over all pending limit orders
// against the given reference price. A stale sample aborts the entire batch
// before any order executes: every order in the batch would be mispriced
// identically, so partial execution is never acceptable. Individual order
// failures are isolated and reported in the counts.
func (s *Service) ExecuteLimitBatch(ctx context.Context, sample domain.PriceSample) (domain.BatchResult, error) {
	now := time.Now().UTC()
	if !sample.Fresh(s.cfg.MaxPriceAge, now) {
		s.logger.WarnContext(ctx, "limit batch skipped on stale price",
			slog.String("symbol", sample.Symbol),
			slog.Duration("age", sample.Age(now)),
		)
		return domain.BatchResult{
			Success: false,
			Message: fmt.Sprintf("price sample for %s is %s old, batch skipped", sample.Symbol, sample.Age(now).Round(time.Second)),
		}, nil
	}

	pending, err := s.orders.ListPending(ctx)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("executor: list pending orders: %w", err)
	}

	res := domain.BatchResult{Success: true}
	for _, o := range pending {
		if !limitMatches(o, sample.Price) {
			res.SkippedCount++
			continue
		}
		if err := s.fillLimitOrder(ctx, o, sample.Price); err != nil {
			if isAlreadyDone(err) {
				res.SkippedCount++
				continue
			}
			s.logger.ErrorContext(ctx, "limit order fill failed",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
			res.FailedCount++
			continue
		}
		res.ExecutedCount++
	}

	res.Message = fmt.Sprintf("executed %d, failed %d, skipped %d of %d pending",
		res.ExecutedCount, res.FailedCount, res.SkippedCount, len(pending))
	if res.ExecutedCount > 0 || res.FailedCount > 0 {
		s.logger.InfoContext(ctx, "limit batch finished",
			slog.Int("executed", res.ExecutedCount),
			slog.Int("failed", res.FailedCount),
			slog.Int("skipped", res.SkippedCount),
		)
	}
	return res, nil
}

// fillLimitOrder converts a matched order's reserved amount at price. The
// reserve was debited at placement, so the fill only credits the output and
// flips the order to filled; the status guard makes concurrent fills of the
// same order a no-op.
func (s *Service) fillLimitOrder(ctx context.Context, o domain.Order, price float64) error {
	fee := round2(o.AmountIn * s.cfg.TradeFeeRate)
	out := outputFor(o.Side, o.AmountIn-fee, price)
	curOut := domain.CurrencyCoin
	if o.Side == domain.OrderSideSell {
		curOut = domain.CurrencyFiat
	}
	now := time.Now().UTC()

	var undo undoStack

	acct, err := s.accounts.Adjust(ctx, o.UserID, curOut, out)
	if err != nil {
		return fmt.Errorf("credit %s: %w", curOut, err)
	}
	undo = append(undo, func(ctx context.Context) {
		if _, err := s.accounts.Adjust(ctx, o.UserID, curOut, -out); err != nil {
			s.logger.ErrorContext(ctx, "rollback fill debit failed",
				slog.String("order_id", o.ID), slog.String("error", err.Error()))
		}
	})

	creditTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      o.UserID,
		Direction:   domain.TxCredit,
		Amount:      out,
		Currency:    curOut,
		Description: fmt.Sprintf("limit %s fill %s", o.Side, o.ID),
		RefID:       &o.ID,
		CreatedAt:   now,
	}
	if err := s.ledger.Append(ctx, creditTx); err != nil {
		undo.Unwind(ctx)
		return fmt.Errorf("append fill tx: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.ledger.Remove(ctx, creditTx.ID); err != nil {
			s.logger.ErrorContext(ctx, "rollback ledger remove failed",
				slog.String("tx_id", creditTx.ID), slog.String("error", err.Error()))
		}
	})

	if err := s.orders.MarkFilled(ctx, o.ID, price, out, fee, now); err != nil {
		undo.Unwind(ctx)
		return fmt.Errorf("mark filled: %w", err)
	}

	s.publish(ctx, domain.ChannelBalances, domain.NewEvent(domain.EventBalanceChanged, o.UserID, map[string]any{
		"coin_balance": acct.AvailableBalance,
		"fiat_balance": acct.FiatBalance,
	}))
	s.publish(ctx, domain.ChannelMarkets, domain.NewEvent(domain.EventOrderFilled, o.UserID, map[string]any{
		"order_id": o.ID,
		"side":     string(o.Side),
		"price":    price,
	}))
	return nil
}

// CancelLimitOrder refunds a resting order minus the cancellation penalty.
// The pending -> cancelled guard is the at-most-once barrier against a
// concurrent fill or a double cancel.
func (s *Service) CancelLimitOrder(ctx context.Context, orderID, userID string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("executor: load order: %w", err)
	}
	if o.UserID != userID {
		return domain.ErrNotOwner
	}
	if o.Type != domain.OrderTypeLimit || o.Status != domain.OrderStatusPending {
		return domain.ErrNotPending
	}

	penalty := round2(o.AmountIn * s.cfg.CancelFeeRate)
	refund := round2(o.AmountIn - penalty)
	return s.releaseReserve(ctx, o, refund, domain.OrderStatusCancelled,
		fmt.Sprintf("limit order cancel refund %s", o.ID))
}

// ExpireLimitOrders cancels every pending order older than maxAge with a full
// refund. Invoked by the maintenance job; safe to re-run.
func (s *Service) ExpireLimitOrders(ctx context.Context, maxAge time.Duration) (domain.ExpiryResult, error) {
	pending, err := s.orders.ListPending(ctx)
	if err != nil {
		return domain.ExpiryResult{}, fmt.Errorf("executor: list pending orders: %w", err)
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	res := domain.ExpiryResult{Success: true}
	for _, o := range pending {
		if o.CreatedAt.After(cutoff) {
			continue
		}
		err := s.releaseReserve(ctx, o, o.AmountIn, domain.OrderStatusExpired,
			fmt.Sprintf("limit order expiry refund %s", o.ID))
		if err != nil {
			if isAlreadyDone(err) {
				continue
			}
			s.logger.ErrorContext(ctx, "limit order expiry failed",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
			res.FailedCount++
			continue
		}
		res.ExpiredCount++
	}
	res.Message = fmt.Sprintf("expired %d, failed %d", res.ExpiredCount, res.FailedCount)
	return res, nil
}

// releaseReserve credits refund back, appends the matching ledger row, and
// transitions the order out of pending, unwinding on failure.
func (s *Service) releaseReserve(ctx context.Context, o domain.Order, refund float64, to domain.OrderStatus, desc string) error {
	now := time.Now().UTC()

	var undo undoStack

	acct, err := s.accounts.Adjust(ctx, o.UserID, o.CurrencyIn, refund)
	if err != nil {
		return fmt.Errorf("executor: refund credit: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if _, err := s.accounts.Adjust(ctx, o.UserID, o.CurrencyIn, -refund); err != nil {
			s.logger.ErrorContext(ctx, "rollback refund failed",
				slog.String("order_id", o.ID), slog.String("error", err.Error()))
		}
	})

	refundTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      o.UserID,
		Direction:   domain.TxCredit,
		Amount:      refund,
		Currency:    o.CurrencyIn,
		Description: desc,
		RefID:       &o.ID,
		CreatedAt:   now,
	}
	if err := s.ledger.Append(ctx, refundTx); err != nil {
		undo.Unwind(ctx)
		return fmt.Errorf("executor: append refund tx: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.ledger.Remove(ctx, refundTx.ID); err != nil {
			s.logger.ErrorContext(ctx, "rollback ledger remove failed",
				slog.String("tx_id", refundTx.ID), slog.String("error", err.Error()))
		}
	})

	if err := s.orders.UpdateStatus(ctx, o.ID, to, now); err != nil {
		undo.Unwind(ctx)
		return fmt.Errorf("executor: transition order: %w", err)
	}

	s.publish(ctx, domain.ChannelBalances, domain.NewEvent(domain.EventBalanceChanged, o.UserID, map[string]any{
		"coin_balance": acct.AvailableBalance,
		"fiat_balance": acct.FiatBalance,
	}))
	return nil
}
