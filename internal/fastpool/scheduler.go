// Package fastpool runs the 60-second up/down rounds: opening rounds on
// minute boundaries, accepting bets up to the blackout window, settling
// closed rounds against the price oracle, and refunding bets when an asset's
// feed goes unreliable. Every pass is idempotent: rounds are guarded by
// status transitions and bets by their processed flag, so the scheduler can
// be invoked as often as the trigger likes.
package fastpool

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/riozmarkets/settlement/internal/domain"
)

const (
	// RoundLength is the exact duration of every round.
	RoundLength = 60 * time.Second
	// BlackoutWindow closes betting this long before the round ends, so
	// nobody bets on a move that is already visible.
	BlackoutWindow = 10 * time.Second
	// settleLockTTL bounds how long a settlement lock can be held.
	settleLockTTL = 30 * time.Second
)

// Asset is one traded symbol the scheduler runs rounds for.
type Asset struct {
	Symbol   string
	Category string
}

// Config holds the scheduler's assets and betting parameters.
type Config struct {
	Assets   []Asset
	BaseOdds float64 // fixed payout odds captured on each bet at placement
	// BetRateLimit / BetRateWindow bound bet placement per user.
	BetRateLimit  int
	BetRateWindow time.Duration
}

// Scheduler owns the fast-pool round lifecycle.
type Scheduler struct {
	pools    domain.FastPoolStore
	bets     domain.FastPoolBetStore
	accounts domain.AccountStore
	ledger   domain.LedgerStore
	oracle   domain.PriceOracle
	locks    domain.LockManager
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	cfg      Config
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler with all required dependencies.
func NewScheduler(
	pools domain.FastPoolStore,
	bets domain.FastPoolBetStore,
	accounts domain.AccountStore,
	ledger domain.LedgerStore,
	oracle domain.PriceOracle,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.BaseOdds == 0 {
		cfg.BaseOdds = 1.9
	}
	if cfg.BetRateLimit == 0 {
		cfg.BetRateLimit = 5
	}
	if cfg.BetRateWindow == 0 {
		cfg.BetRateWindow = time.Second
	}
	return &Scheduler{
		pools:    pools,
		bets:     bets,
		accounts: accounts,
		ledger:   ledger,
		oracle:   oracle,
		locks:    locks,
		limiter:  limiter,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "fastpool")),
	}
}

// EnsureRounds opens a new round for every asset that has no active,
// non-expired round. Round starts are floored to the minute so consecutive
// rounds tile the clock in disjoint 60-second windows.
func (s *Scheduler) EnsureRounds(ctx context.Context) (domain.RolloverResult, error) {
	now := time.Now().UTC()
	res := domain.RolloverResult{Success: true}

	for _, asset := range s.cfg.Assets {
		if _, err := s.pools.ActiveRound(ctx, asset.Symbol, asset.Category, now); err == nil {
			continue
		}

		sample, err := s.oracle.GetCurrentPrice(ctx, asset.Symbol)
		if err != nil {
			s.logger.WarnContext(ctx, "cannot open round without opening price",
				slog.String("asset", asset.Symbol),
				slog.String("error", err.Error()),
			)
			res.FailedCount++
			continue
		}

		start := now.Truncate(time.Minute)
		round := domain.FastPool{
			ID:           uuid.New().String(),
			Category:     asset.Category,
			AssetSymbol:  asset.Symbol,
			RoundStart:   start,
			RoundEnd:     start.Add(RoundLength),
			OpeningPrice: sample.Price,
			Status:       domain.FastPoolStatusActive,
			BaseOdds:     s.cfg.BaseOdds,
			CreatedAt:    now,
		}
		if err := s.pools.Create(ctx, round); err != nil {
			s.logger.ErrorContext(ctx, "round create failed",
				slog.String("asset", asset.Symbol),
				slog.String("error", err.Error()),
			)
			res.FailedCount++
			continue
		}
		res.OpenedCount++

		s.publish(ctx, domain.ChannelPools, domain.NewEvent(domain.EventRoundOpened, "", map[string]any{
			"pool_id":       round.ID,
			"asset":         asset.Symbol,
			"category":      asset.Category,
			"round_start":   round.RoundStart,
			"round_end":     round.RoundEnd,
			"opening_price": round.OpeningPrice,
			"odds":          round.BaseOdds,
		}))
	}

	res.Message = fmt.Sprintf("opened %d rounds, %d failed", res.OpenedCount, res.FailedCount)
	return res, nil
}

// PlaceBet accepts an up/down bet on an active round. Bets are rejected once
// the blackout window starts, when the round is paused, and when the user or
// stake fails validation. The debit, ledger row, and bet record commit
// together or not at all.
func (s *Scheduler) PlaceBet(ctx context.Context, userID, poolID string, side domain.BetSide, stake float64) (domain.FastPoolBet, error) {
	// Stakes live on the same two-decimal grain as account balances.
	stake = math.Round(stake*100) / 100
	if stake < 0.01 {
		return domain.FastPoolBet{}, domain.ErrInvalidAmount
	}
	if side != domain.BetSideUp && side != domain.BetSideDown {
		return domain.FastPoolBet{}, fmt.Errorf("fastpool: side %q: %w", side, domain.ErrInvalidOption)
	}

	allowed, err := s.limiter.Allow(ctx, "fastpool:bets:"+userID, s.cfg.BetRateLimit, s.cfg.BetRateWindow)
	if err != nil {
		return domain.FastPoolBet{}, fmt.Errorf("fastpool: rate limiter: %w", err)
	}
	if !allowed {
		return domain.FastPoolBet{}, domain.ErrRateLimited
	}

	round, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return domain.FastPoolBet{}, fmt.Errorf("fastpool: load round: %w", err)
	}
	now := time.Now().UTC()
	if round.Status != domain.FastPoolStatusActive {
		return domain.FastPoolBet{}, domain.ErrBettingClosed
	}
	if round.Paused {
		return domain.FastPoolBet{}, domain.ErrPoolPaused
	}
	if !now.Before(round.RoundEnd.Add(-BlackoutWindow)) {
		return domain.FastPoolBet{}, domain.ErrBettingClosed
	}

	betID := uuid.New().String()

	if _, err := s.accounts.Adjust(ctx, userID, domain.CurrencyCoin, -stake); err != nil {
		return domain.FastPoolBet{}, fmt.Errorf("fastpool: debit stake: %w", err)
	}
	rollbackDebit := func() {
		if _, err := s.accounts.Adjust(ctx, userID, domain.CurrencyCoin, stake); err != nil {
			s.logger.ErrorContext(ctx, "rollback stake refund failed",
				slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}

	stakeTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Direction:   domain.TxDebit,
		Amount:      stake,
		Currency:    domain.CurrencyCoin,
		Description: fmt.Sprintf("fast pool bet %s %s", side, betID),
		RefID:       &poolID,
		CreatedAt:   now,
	}
	if err := s.ledger.Append(ctx, stakeTx); err != nil {
		rollbackDebit()
		return domain.FastPoolBet{}, fmt.Errorf("fastpool: append stake tx: %w", err)
	}

	bet := domain.FastPoolBet{
		ID:              betID,
		UserID:          userID,
		PoolID:          poolID,
		Side:            side,
		Stake:           stake,
		OddsAtPlacement: round.BaseOdds,
		CreatedAt:       now,
	}
	if err := s.bets.Create(ctx, bet); err != nil {
		if rerr := s.ledger.Remove(ctx, stakeTx.ID); rerr != nil {
			s.logger.ErrorContext(ctx, "rollback ledger remove failed",
				slog.String("tx_id", stakeTx.ID), slog.String("error", rerr.Error()))
		}
		rollbackDebit()
		return domain.FastPoolBet{}, fmt.Errorf("fastpool: create bet: %w", err)
	}

	s.publish(ctx, domain.ChannelBalances, domain.NewEvent(domain.EventBalanceChanged, userID, nil))

	return bet, nil
}

func (s *Scheduler) publish(ctx context.Context, channel string, ev domain.Event) {
	if err := s.bus.Publish(ctx, channel, ev.Marshal()); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
