package fastpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riozmarkets/settlement/internal/domain"
)

// PauseAndRefund freezes every active round of an asset and returns each
// unprocessed bet's stake in full, no fee. Used when the asset's price feed
// is flagged unreliable: with no trustworthy closing price, the only fair
// settlement is to unwind the round.
//
// The pass tolerates partial completion. A bet whose refund fails stays
// unprocessed and is reported in FailedBets for the next invocation; it never
// aborts the rest of the batch. Re-running is safe: processed bets are
// excluded by the store query and guarded by MarkProcessed.
func (s *Scheduler) PauseAndRefund(ctx context.Context, assetSymbol string) (domain.RefundResult, error) {
	rounds, err := s.pools.ListActiveByAsset(ctx, assetSymbol)
	if err != nil {
		return domain.RefundResult{}, fmt.Errorf("fastpool: list active rounds: %w", err)
	}

	res := domain.RefundResult{Success: true}
	for _, round := range rounds {
		// Pause first so no new bet lands while refunds run.
		if !round.Paused {
			if err := s.pools.SetPaused(ctx, round.ID, true); err != nil {
				s.logger.ErrorContext(ctx, "pause failed",
					slog.String("pool_id", round.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			res.PausedPools++
			s.publish(ctx, domain.ChannelPools, domain.NewEvent(domain.EventRoundPaused, "", map[string]any{
				"pool_id": round.ID,
				"asset":   assetSymbol,
			}))
		}

		bets, err := s.bets.ListUnprocessedByPool(ctx, round.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "list bets for refund failed",
				slog.String("pool_id", round.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, bet := range bets {
			if err := s.finalizeBet(ctx, bet, bet.Stake, fmt.Sprintf("fast pool refund %s", round.ID)); err != nil {
				if errors.Is(err, domain.ErrAlreadyProcessed) {
					continue
				}
				s.logger.ErrorContext(ctx, "bet refund failed",
					slog.String("bet_id", bet.ID),
					slog.String("error", err.Error()),
				)
				res.FailedBets++
				continue
			}
			res.RefundedBets++
		}
	}

	if res.FailedBets > 0 {
		res.Success = false
	}
	res.Message = fmt.Sprintf("paused %d rounds, refunded %d bets, %d failed",
		res.PausedPools, res.RefundedBets, res.FailedBets)
	s.logger.InfoContext(ctx, "pause and refund finished",
		slog.String("asset", assetSymbol),
		slog.Int("paused", res.PausedPools),
		slog.Int("refunded", res.RefundedBets),
		slog.Int("failed", res.FailedBets),
	)
	return res, nil
}
