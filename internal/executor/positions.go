package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/pool"
)

// PoolFeePercent is the platform fee taken from the losing side of a market
// pool, as a fraction.
const PoolFeePercent = 0.20

// PoolSnapshot recomputes the live pool state of a market from its active
// positions. Always fresh, never cached: quotes and fills must see the same
// multipliers.
func (s *Service) PoolSnapshot(ctx context.Context, marketID string) (pool.Snapshot, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return pool.Snapshot{}, fmt.Errorf("executor: load market: %w", err)
	}
	positions, err := s.positions.ListActiveByMarket(ctx, marketID)
	if err != nil {
		return pool.Snapshot{}, fmt.Errorf("executor: list active positions: %w", err)
	}
	return pool.Compute(marketID, m.Options, positions, PoolFeePercent), nil
}

// PlacePosition commits stake on one option of an open market. The debit,
// ledger row, and position record commit together or not at all.
func (s *Service) PlacePosition(ctx context.Context, userID, marketID, option string, stake float64) (domain.Position, error) {
	stake, err := normalizeAmount(stake)
	if err != nil {
		return domain.Position{}, err
	}
	if err := s.allowOrder(ctx, userID); err != nil {
		return domain.Position{}, err
	}

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("executor: load market: %w", err)
	}
	now := time.Now().UTC()
	if m.Status != domain.MarketStatusOpen || now.After(m.ClosesAt) {
		return domain.Position{}, domain.ErrMarketClosed
	}
	if !m.HasOption(option) {
		return domain.Position{}, domain.ErrInvalidOption
	}

	// Entry multiplier is informational: the snapshot the bettor saw.
	active, err := s.positions.ListActiveByMarket(ctx, marketID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("executor: list active positions: %w", err)
	}
	entry := pool.Compute(marketID, m.Options, active, PoolFeePercent).Multiplier(option)

	positionID := uuid.New().String()

	var undo undoStack

	if _, err := s.accounts.Adjust(ctx, userID, domain.CurrencyCoin, -stake); err != nil {
		return domain.Position{}, fmt.Errorf("executor: debit stake: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if _, err := s.accounts.Adjust(ctx, userID, domain.CurrencyCoin, stake); err != nil {
			s.logger.ErrorContext(ctx, "rollback stake refund failed",
				slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	})

	stakeTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Direction:   domain.TxDebit,
		Amount:      stake,
		Currency:    domain.CurrencyCoin,
		Description: fmt.Sprintf("stake on %s / %s", marketID, option),
		RefID:       &marketID,
		CreatedAt:   now,
	}
	if err := s.ledger.Append(ctx, stakeTx); err != nil {
		undo.Unwind(ctx)
		return domain.Position{}, fmt.Errorf("executor: append stake tx: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.ledger.Remove(ctx, stakeTx.ID); err != nil {
			s.logger.ErrorContext(ctx, "rollback ledger remove failed",
				slog.String("tx_id", stakeTx.ID), slog.String("error", err.Error()))
		}
	})

	p := domain.Position{
		ID:              positionID,
		UserID:          userID,
		MarketID:        marketID,
		OptionChosen:    option,
		Stake:           stake,
		EntryMultiplier: entry,
		Status:          domain.PositionStatusActive,
		CreatedAt:       now,
	}
	if err := s.positions.Create(ctx, p); err != nil {
		undo.Unwind(ctx)
		return domain.Position{}, fmt.Errorf("executor: create position: %w", err)
	}

	s.publish(ctx, domain.ChannelBalances, domain.NewEvent(domain.EventBalanceChanged, userID, nil))

	return p, nil
}

// SettleMarket resolves a market and pays every active winning position
// stake times the settlement multiplier, computed pari-passu over everyone
// who stayed in until resolution. Losers transition to lost with no payout.
// Safe to re-run: already settled positions are skipped by the status guard,
// and a retry reproduces the original multipliers because the pools are
// rebuilt from all resolution-time positions, paid or not.
func (s *Service) SettleMarket(ctx context.Context, marketID, winningOption string) (domain.SettlementResult, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("executor: load market: %w", err)
	}
	if !m.HasOption(winningOption) {
		return domain.SettlementResult{}, domain.ErrInvalidOption
	}
	if m.Status == domain.MarketStatusResolved && m.WinningOption != winningOption {
		return domain.SettlementResult{}, fmt.Errorf("executor: market %s already resolved to %q", marketID, m.WinningOption)
	}

	all, err := s.positions.ListByMarket(ctx, marketID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("executor: list positions: %w", err)
	}
	snap := pool.ComputeAtResolution(marketID, m.Options, all, PoolFeePercent)
	multiplier := snap.Multiplier(winningOption)

	now := time.Now().UTC()
	res := domain.SettlementResult{Success: true}

	for _, p := range all {
		if p.Status != domain.PositionStatusActive {
			continue
		}
		if p.OptionChosen == winningOption {
			if err := s.payPosition(ctx, p, round2(p.Stake*multiplier), now); err != nil {
				s.logger.ErrorContext(ctx, "winning position payout failed",
					slog.String("position_id", p.ID),
					slog.String("error", err.Error()),
				)
				res.FailedCount++
				continue
			}
			res.PaidCount++
		} else {
			err := s.positions.Transition(ctx, p.ID, domain.PositionStatusActive, domain.PositionStatusLost, now)
			if err != nil && !errors.Is(err, domain.ErrNotActive) {
				res.FailedCount++
				continue
			}
			res.LostCount++
		}
	}

	// Resolve the market record last so a crash mid-batch leaves it open and
	// the next sweep retries the unpaid remainder.
	if err := s.markets.Resolve(ctx, marketID, winningOption, now); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return res, fmt.Errorf("executor: resolve market: %w", err)
	}

	res.Message = fmt.Sprintf("paid %d, lost %d, failed %d", res.PaidCount, res.LostCount, res.FailedCount)
	s.publish(ctx, domain.ChannelPools, domain.NewEvent(domain.EventMarketResolved, "", map[string]any{
		"market_id":      marketID,
		"winning_option": winningOption,
		"paid_count":     res.PaidCount,
	}))
	return res, nil
}

// payPosition credits a settlement payout and transitions the position to
// won. Transition runs last so a credit failure leaves the position active
// for the retry sweep; a guard failure on the transition unwinds the credit.
func (s *Service) payPosition(ctx context.Context, p domain.Position, payout float64, now time.Time) error {
	var undo undoStack

	if _, err := s.accounts.Adjust(ctx, p.UserID, domain.CurrencyCoin, payout); err != nil {
		return fmt.Errorf("credit payout: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if _, err := s.accounts.Adjust(ctx, p.UserID, domain.CurrencyCoin, -payout); err != nil {
			s.logger.ErrorContext(ctx, "rollback payout failed",
				slog.String("position_id", p.ID), slog.String("error", err.Error()))
		}
	})

	payoutTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      p.UserID,
		Direction:   domain.TxCredit,
		Amount:      payout,
		Currency:    domain.CurrencyCoin,
		Description: fmt.Sprintf("settlement payout %s / %s", p.MarketID, p.OptionChosen),
		RefID:       &p.MarketID,
		CreatedAt:   now,
	}
	if err := s.ledger.Append(ctx, payoutTx); err != nil {
		undo.Unwind(ctx)
		return fmt.Errorf("append payout tx: %w", err)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.ledger.Remove(ctx, payoutTx.ID); err != nil {
			s.logger.ErrorContext(ctx, "rollback ledger remove failed",
				slog.String("tx_id", payoutTx.ID), slog.String("error", err.Error()))
		}
	})

	if err := s.positions.Transition(ctx, p.ID, domain.PositionStatusActive, domain.PositionStatusWon, now); err != nil {
		undo.Unwind(ctx)
		return fmt.Errorf("transition position: %w", err)
	}

	s.publish(ctx, domain.ChannelBalances, domain.NewEvent(domain.EventBalanceChanged, p.UserID, nil))
	return nil
}
