package fastpool

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

// resultOf maps the price move to a round result.
func resultOf(opening, closing float64) domain.FastPoolResult {
	switch {
	case closing > opening:
		return domain.FastPoolResultUp
	case closing < opening:
		return domain.FastPoolResultDown
	default:
		return domain.FastPoolResultFlat
	}
}

// changePercent is the signed price move of a round as a percentage.
func changePercent(opening, closing float64) float64 {
	if opening == 0 {
		return 0
	}
	return (closing - opening) / opening * 100
}

// SettleDue settles every active round whose end has passed. Each round is
// settled under a distributed lock and a status guard, so overlapping sweeps
// and restarts can never pay a bet twice; a round whose closing price cannot
// be read is left active for the next sweep. One failed payout never blocks
// the rest of a round's bets.
func (s *Scheduler) SettleDue(ctx context.Context) (domain.SettlementResult, error) {
	now := time.Now().UTC()
	due, err := s.pools.ListDue(ctx, now)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("fastpool: list due rounds: %w", err)
	}

	res := domain.SettlementResult{Success: true}
	for _, round := range due {
		paid, lost, failed, err := s.settleRound(ctx, round)
		res.PaidCount += paid
		res.LostCount += lost
		res.FailedCount += failed
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				continue
			}
			s.logger.ErrorContext(ctx, "round settlement failed",
				slog.String("pool_id", round.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.SettledPools++
	}

	res.Message = fmt.Sprintf("settled %d rounds: paid %d, lost %d, failed %d",
		res.SettledPools, res.PaidCount, res.LostCount, res.FailedCount)
	return res, nil
}

func (s *Scheduler) settleRound(ctx context.Context, round domain.FastPool) (paid, lost, failed int, err error) {
	unlock, err := s.locks.Acquire(ctx, "fastpool:settle:"+round.ID, settleLockTTL)
	if err != nil {
		return 0, 0, 0, err
	}
	defer unlock()

	// Claim the round. Losing the guard means another settler finished (or is
	// finishing) this round.
	if err := s.pools.MarkProcessing(ctx, round.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, 0, 0, nil
		}
		return 0, 0, 0, fmt.Errorf("mark processing: %w", err)
	}

	sample, err := s.oracle.GetCurrentPrice(ctx, round.AssetSymbol)
	if err != nil {
		// No closing price, no settlement. Put the round back so the next
		// sweep retries once the feed recovers.
		if rerr := s.pools.Reactivate(ctx, round.ID); rerr != nil {
			s.logger.ErrorContext(ctx, "round stuck in processing",
				slog.String("pool_id", round.ID), slog.String("error", rerr.Error()))
		}
		return 0, 0, 0, fmt.Errorf("closing price: %w", err)
	}

	result := resultOf(round.OpeningPrice, sample.Price)
	winner, hasWinner := result.WinningSide()

	bets, err := s.bets.ListUnprocessedByPool(ctx, round.ID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list bets: %w", err)
	}

	for _, bet := range bets {
		payout := 0.0
		if hasWinner && bet.Side == winner {
			payout = math.Floor(bet.Stake * bet.OddsAtPlacement)
		}
		if err := s.finalizeBet(ctx, bet, payout, fmt.Sprintf("fast pool payout %s", round.ID)); err != nil {
			if errors.Is(err, domain.ErrAlreadyProcessed) {
				continue
			}
			s.logger.ErrorContext(ctx, "bet payout failed",
				slog.String("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		if payout > 0 {
			paid++
		} else {
			lost++
		}
	}

	if err := s.pools.Complete(ctx, round.ID, sample.Price, result, changePercent(round.OpeningPrice, sample.Price)); err != nil {
		return paid, lost, failed, fmt.Errorf("complete round: %w", err)
	}

	s.publish(ctx, domain.ChannelPools, domain.NewEvent(domain.EventPoolSettled, "", map[string]any{
		"pool_id":              round.ID,
		"asset":                round.AssetSymbol,
		"result":               string(result),
		"opening_price":        round.OpeningPrice,
		"closing_price":        sample.Price,
		"price_change_percent": changePercent(round.OpeningPrice, sample.Price),
		"paid_bets":            paid,
		"failed_bets":          failed,
	}))
	return paid, lost, failed, nil
}

// finalizeBet credits a non-zero payout with its ledger row and marks the bet
// processed. Credits come first: a processed bet without its payout
// transaction must never be observable, so a failed mark unwinds the credit.
func (s *Scheduler) finalizeBet(ctx context.Context, bet domain.FastPoolBet, payout float64, desc string) error {
	now := time.Now().UTC()
	var creditTxID string

	if payout > 0 {
		if _, err := s.accounts.Adjust(ctx, bet.UserID, domain.CurrencyCoin, payout); err != nil {
			return fmt.Errorf("credit payout: %w", err)
		}
		tx := domain.LedgerTransaction{
			ID:          uuid.New().String(),
			UserID:      bet.UserID,
			Direction:   domain.TxCredit,
			Amount:      payout,
			Currency:    domain.CurrencyCoin,
			Description: fmt.Sprintf("%s bet %s", desc, bet.ID),
			RefID:       &bet.PoolID,
			CreatedAt:   now,
		}
		if err := s.ledger.Append(ctx, tx); err != nil {
			if _, aerr := s.accounts.Adjust(ctx, bet.UserID, domain.CurrencyCoin, -payout); aerr != nil {
				s.logger.ErrorContext(ctx, "rollback payout failed",
					slog.String("bet_id", bet.ID), slog.String("error", aerr.Error()))
			}
			return fmt.Errorf("append payout tx: %w", err)
		}
		creditTxID = tx.ID
	}

	if err := s.bets.MarkProcessed(ctx, bet.ID, payout); err != nil {
		if payout > 0 {
			if creditTxID != "" {
				if rerr := s.ledger.Remove(ctx, creditTxID); rerr != nil {
					s.logger.ErrorContext(ctx, "rollback ledger remove failed",
						slog.String("tx_id", creditTxID), slog.String("error", rerr.Error()))
				}
			}
			if _, aerr := s.accounts.Adjust(ctx, bet.UserID, domain.CurrencyCoin, -payout); aerr != nil {
				s.logger.ErrorContext(ctx, "rollback payout failed",
					slog.String("bet_id", bet.ID), slog.String("error", aerr.Error()))
			}
		}
		return err
	}

	if payout > 0 {
		s.publish(ctx, domain.ChannelBalances, domain.NewEvent(domain.EventBalanceChanged, bet.UserID, nil))
	}
	return nil
}
