package fastpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riozmarkets/settlement/internal/domain"
)

// dueRound seeds an active round whose end has already passed.
func (f *fixture) dueRound(t *testing.T, id, symbol string, openingPrice float64) domain.FastPool {
	t.Helper()
	now := time.Now().UTC()
	round := domain.FastPool{
		ID:           id,
		Category:     "crypto",
		AssetSymbol:  symbol,
		RoundStart:   now.Add(-2 * RoundLength),
		RoundEnd:     now.Add(-RoundLength),
		OpeningPrice: openingPrice,
		Status:       domain.FastPoolStatusActive,
		BaseOdds:     1.9,
		CreatedAt:    now.Add(-2 * RoundLength),
	}
	require.NoError(t, f.pools.Create(context.Background(), round))
	return round
}

func (f *fixture) placeBet(t *testing.T, id, userID, poolID string, side domain.BetSide, stake float64) {
	t.Helper()
	require.NoError(t, f.bets.Create(context.Background(), domain.FastPoolBet{
		ID:              id,
		UserID:          userID,
		PoolID:          poolID,
		Side:            side,
		Stake:           stake,
		OddsAtPlacement: 1.9,
		CreatedAt:       time.Now().UTC(),
	}))
}

func (f *fixture) coinBalance(t *testing.T, userID string) float64 {
	t.Helper()
	acct, err := f.accounts.Get(context.Background(), userID)
	require.NoError(t, err)
	return acct.AvailableBalance
}

func TestSettleDue_PriceWentUp(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.dueRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 400) // already staked 100
	f.fund(t, "bob", 450)   // already staked 50
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 100)
	f.placeBet(t, "b-bob", "bob", round.ID, domain.BetSideDown, 50)

	f.oracle.prices["BTCUSDT"] = 50500

	res, err := f.scheduler.SettleDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.SettledPools)
	require.Equal(t, 1, res.PaidCount)
	require.Equal(t, 1, res.LostCount)
	require.Equal(t, 0, res.FailedCount)

	// Payout is floor(100 * 1.9) = 190 whole coins.
	require.Equal(t, 590.0, f.coinBalance(t, "alice"))
	require.Equal(t, 450.0, f.coinBalance(t, "bob"))

	settled, err := f.pools.GetByID(context.Background(), round.ID)
	require.NoError(t, err)
	require.Equal(t, domain.FastPoolStatusCompleted, settled.Status)
	require.Equal(t, domain.FastPoolResultUp, settled.Result)
	require.NotNil(t, settled.ClosingPrice)
	require.Equal(t, 50500.0, *settled.ClosingPrice)
	require.InDelta(t, 1.0, settled.PriceChangePercent, 1e-9)
}

func TestSettleDue_PriceWentDown(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.dueRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 400)
	f.fund(t, "bob", 450)
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 100)
	f.placeBet(t, "b-bob", "bob", round.ID, domain.BetSideDown, 50)

	f.oracle.prices["BTCUSDT"] = 49000

	res, err := f.scheduler.SettleDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.PaidCount)

	// floor(50 * 1.9) = 95.
	require.Equal(t, 400.0, f.coinBalance(t, "alice"))
	require.Equal(t, 545.0, f.coinBalance(t, "bob"))

	settled, err := f.pools.GetByID(context.Background(), round.ID)
	require.NoError(t, err)
	require.Equal(t, domain.FastPoolResultDown, settled.Result)
}

func TestSettleDue_FlatCloseNobodyWins(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.dueRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 400)
	f.fund(t, "bob", 450)
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 100)
	f.placeBet(t, "b-bob", "bob", round.ID, domain.BetSideDown, 50)

	f.oracle.prices["BTCUSDT"] = 50000

	res, err := f.scheduler.SettleDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.PaidCount)
	require.Equal(t, 2, res.LostCount)

	require.Equal(t, 400.0, f.coinBalance(t, "alice"))
	require.Equal(t, 450.0, f.coinBalance(t, "bob"))

	settled, err := f.pools.GetByID(context.Background(), round.ID)
	require.NoError(t, err)
	require.Equal(t, domain.FastPoolResultFlat, settled.Result)
}

func TestSettleDue_Idempotent(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.dueRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 400)
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 100)
	f.oracle.prices["BTCUSDT"] = 50500

	_, err := f.scheduler.SettleDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 590.0, f.coinBalance(t, "alice"))

	// Completed rounds are not due again; nobody is paid twice.
	res, err := f.scheduler.SettleDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.SettledPools)
	require.Equal(t, 0, res.PaidCount)
	require.Equal(t, 590.0, f.coinBalance(t, "alice"))
	require.Equal(t, 1, f.ledger.Count())
}

func TestSettleDue_NoClosingPriceLeavesRoundActive(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.dueRound(t, "r1", "DEADFEED", 50000)
	f.fund(t, "alice", 400)
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 100)

	res, err := f.scheduler.SettleDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.SettledPools)

	// Back to active so the next sweep retries once the feed recovers.
	r, err := f.pools.GetByID(context.Background(), round.ID)
	require.NoError(t, err)
	require.Equal(t, domain.FastPoolStatusActive, r.Status)

	bet, err := f.bets.GetByID(context.Background(), "b-alice")
	require.NoError(t, err)
	require.False(t, bet.Processed)
	require.Equal(t, 400.0, f.coinBalance(t, "alice"))
}

func TestSettleDue_SkipsPausedRounds(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.dueRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 400)
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideDown, 100)
	require.NoError(t, f.pools.SetPaused(context.Background(), round.ID, true))

	// Price moved against alice, but a paused round is refund territory:
	// settling it would forfeit a stake that is owed back.
	f.oracle.prices["BTCUSDT"] = 50500

	res, err := f.scheduler.SettleDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.SettledPools)

	bet, err := f.bets.GetByID(context.Background(), "b-alice")
	require.NoError(t, err)
	require.False(t, bet.Processed)

	// The refund path still collects the bet afterwards.
	_, err = f.scheduler.PauseAndRefund(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, 500.0, f.coinBalance(t, "alice"))
}

func TestSettleDue_WholeCoinPayouts(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.dueRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 0)
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 33)
	f.oracle.prices["BTCUSDT"] = 50001

	_, err := f.scheduler.SettleDue(context.Background())
	require.NoError(t, err)

	// 33 * 1.9 = 62.7, floored to 62.
	require.Equal(t, 62.0, f.coinBalance(t, "alice"))
}

func TestPauseAndRefund(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.openRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 400)
	f.fund(t, "bob", 450)
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 100)
	f.placeBet(t, "b-bob", "bob", round.ID, domain.BetSideDown, 50)

	res, err := f.scheduler.PauseAndRefund(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 1, res.PausedPools)
	require.Equal(t, 2, res.RefundedBets)
	require.Equal(t, 0, res.FailedBets)

	// Full stakes back, no fee.
	require.Equal(t, 500.0, f.coinBalance(t, "alice"))
	require.Equal(t, 500.0, f.coinBalance(t, "bob"))

	r, err := f.pools.GetByID(context.Background(), round.ID)
	require.NoError(t, err)
	require.True(t, r.Paused)

	// The paused round accepts no further bets.
	_, err = f.scheduler.PlaceBet(context.Background(), "alice", round.ID, domain.BetSideUp, 10)
	require.ErrorIs(t, err, domain.ErrPoolPaused)
}

func TestPauseAndRefund_Rerun(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.openRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 400)
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 100)

	_, err := f.scheduler.PauseAndRefund(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// Processed bets are excluded: a re-run refunds nothing twice.
	res, err := f.scheduler.PauseAndRefund(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, 0, res.PausedPools)
	require.Equal(t, 0, res.RefundedBets)
	require.Equal(t, 500.0, f.coinBalance(t, "alice"))
}

func TestPauseAndRefund_PartialFailureTolerated(t *testing.T) {
	f := newFixture(t, Config{})
	round := f.openRound(t, "r1", "BTCUSDT", 50000)
	f.fund(t, "alice", 400)
	// "ghost" has a bet but no account row, so its refund credit fails.
	f.placeBet(t, "b-alice", "alice", round.ID, domain.BetSideUp, 100)
	f.placeBet(t, "b-ghost", "ghost", round.ID, domain.BetSideDown, 50)

	res, err := f.scheduler.PauseAndRefund(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 1, res.RefundedBets)
	require.Equal(t, 1, res.FailedBets)

	// The failure never blocks the rest of the batch.
	require.Equal(t, 500.0, f.coinBalance(t, "alice"))

	// The failed bet stays unprocessed for the next invocation.
	bet, err := f.bets.GetByID(context.Background(), "b-ghost")
	require.NoError(t, err)
	require.False(t, bet.Processed)

	f.fund(t, "ghost", 0)
	res, err = f.scheduler.PauseAndRefund(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 1, res.RefundedBets)
	require.Equal(t, 50.0, f.coinBalance(t, "ghost"))

	// Alice is not refunded a second time.
	require.Equal(t, 500.0, f.coinBalance(t, "alice"))
}

func TestPauseAndRefund_OtherAssetsUntouched(t *testing.T) {
	f := newFixture(t, Config{})
	f.openRound(t, "r-btc", "BTCUSDT", 50000)
	f.openRound(t, "r-eth", "ETHUSDT", 3000)

	res, err := f.scheduler.PauseAndRefund(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, 1, res.PausedPools)

	eth, err := f.pools.GetByID(context.Background(), "r-eth")
	require.NoError(t, err)
	require.False(t, eth.Paused)
}
