package fastpool

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/store/memory"
)

// stubOracle serves fixed prices per symbol; symbols without a price fail
// like a dead feed.
type stubOracle struct {
	prices map[string]float64
}

func (o *stubOracle) GetCurrentPrice(_ context.Context, symbol string) (domain.PriceSample, error) {
	price, ok := o.prices[symbol]
	if !ok {
		return domain.PriceSample{}, domain.ErrNotFound
	}
	return domain.PriceSample{Symbol: symbol, Price: price, ObservedAt: time.Now().UTC()}, nil
}

type fixture struct {
	pools     *memory.FastPoolStore
	bets      *memory.FastPoolBetStore
	accounts  *memory.AccountStore
	ledger    *memory.LedgerStore
	oracle    *stubOracle
	scheduler *Scheduler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.BetRateLimit == 0 {
		cfg.BetRateLimit = 100
	}
	f := &fixture{
		pools:    memory.NewFastPoolStore(),
		bets:     memory.NewFastPoolBetStore(),
		accounts: memory.NewAccountStore(),
		ledger:   memory.NewLedgerStore(),
		oracle:   &stubOracle{prices: map[string]float64{}},
	}
	f.scheduler = NewScheduler(
		f.pools, f.bets, f.accounts, f.ledger, f.oracle,
		memory.NewLockManager(), memory.NewRateLimiter(), memory.NewSignalBus(),
		cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func (f *fixture) fund(t *testing.T, userID string, coin float64) {
	t.Helper()
	err := f.accounts.Create(context.Background(), domain.Account{UserID: userID, AvailableBalance: coin})
	require.NoError(t, err)
}

// openRound seeds an active round directly, ending a full minute from now so
// bets land outside the blackout window.
func (f *fixture) openRound(t *testing.T, id, symbol string, openingPrice float64) domain.FastPool {
	t.Helper()
	start := time.Now().UTC().Truncate(time.Minute)
	round := domain.FastPool{
		ID:           id,
		Category:     "crypto",
		AssetSymbol:  symbol,
		RoundStart:   start,
		RoundEnd:     time.Now().UTC().Add(RoundLength),
		OpeningPrice: openingPrice,
		Status:       domain.FastPoolStatusActive,
		BaseOdds:     1.9,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.pools.Create(context.Background(), round))
	return round
}

func TestEnsureRounds(t *testing.T) {
	f := newFixture(t, Config{
		Assets:   []Asset{{Symbol: "BTCUSDT", Category: "crypto"}},
		BaseOdds: 1.9,
	})
	f.oracle.prices["BTCUSDT"] = 50000

	res, err := f.scheduler.EnsureRounds(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.OpenedCount)
	require.Equal(t, 0, res.FailedCount)

	rounds, err := f.pools.ListActiveByAsset(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	round := rounds[0]
	require.Equal(t, round.RoundStart, round.RoundStart.Truncate(time.Minute))
	require.Equal(t, round.RoundStart.Add(RoundLength), round.RoundEnd)
	require.Equal(t, 50000.0, round.OpeningPrice)
	require.Equal(t, 1.9, round.BaseOdds)

	// A second pass sees the active round and opens nothing.
	res, err = f.scheduler.EnsureRounds(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.OpenedCount)
}

func TestEnsureRounds_NoOpeningPrice(t *testing.T) {
	f := newFixture(t, Config{
		Assets: []Asset{{Symbol: "DEADFEED", Category: "crypto"}},
	})

	res, err := f.scheduler.EnsureRounds(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.OpenedCount)
	require.Equal(t, 1, res.FailedCount)
}

func TestPlaceBet(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.openRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 500)

	bet, err := f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 100)
	require.NoError(t, err)
	require.Equal(t, domain.BetSideUp, bet.Side)
	require.Equal(t, 1.9, bet.OddsAtPlacement)
	require.False(t, bet.Processed)

	acct, err := f.accounts.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 400.0, acct.AvailableBalance)
	require.Equal(t, 1, f.ledger.Count())
}

func TestPlaceBet_Rejections(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.openRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 50)

	_, err := f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSide("sideways"), 10)
	require.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 9999)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.scheduler.PlaceBet(context.Background(), "alice", "missing", domain.BetSideUp, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)

	acct, err := f.accounts.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 50.0, acct.AvailableBalance)
	require.Equal(t, 0, f.ledger.Count())
}

func TestPlaceBet_SubCentStakes(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.openRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 50)

	// A stake below one cent rounds to zero and is rejected.
	_, err := f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 0.004)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.Equal(t, 0, f.ledger.Count())

	// A fractional stake is snapped to cents before the debit.
	bet, err := f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 10.004)
	require.NoError(t, err)
	require.Equal(t, 10.0, bet.Stake)

	acct, err := f.accounts.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 40.0, acct.AvailableBalance)
}

func TestPlaceBet_BlackoutWindow(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 500)

	// Round ends in 5s: inside the 10s blackout.
	now := time.Now().UTC()
	require.NoError(t, f.pools.Create(context.Background(), domain.FastPool{
		ID:          "closing",
		AssetSymbol: "BTCUSDT",
		Category:    "crypto",
		RoundStart:  now.Add(-55 * time.Second),
		RoundEnd:    now.Add(5 * time.Second),
		Status:      domain.FastPoolStatusActive,
		BaseOdds:    1.9,
	}))

	_, err := f.scheduler.PlaceBet(context.Background(), "alice", "closing", domain.BetSideUp, 100)
	require.ErrorIs(t, err, domain.ErrBettingClosed)
}

func TestPlaceBet_PausedRound(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.openRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 500)
	require.NoError(t, f.pools.SetPaused(context.Background(), round.ID, true))

	_, err := f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 100)
	require.ErrorIs(t, err, domain.ErrPoolPaused)
}

func TestPlaceBet_RateLimited(t *testing.T) {
	f := newFixture(t, Config{BetRateLimit: 1, BetRateWindow: time.Minute})
	round := f.openRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 500)

	_, err := f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 10)
	require.NoError(t, err)

	_, err = f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 10)
	require.ErrorIs(t, err, domain.ErrRateLimited)
}
