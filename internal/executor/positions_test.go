package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riozmarkets/settlement/internal/domain"
)

func (f *fixture) openMarket(t *testing.T, id string, options ...string) {
	t.Helper()
	err := f.markets.Create(context.Background(), domain.Market{
		ID:        id,
		Title:     "test market " + id,
		Options:   options,
		Status:    domain.MarketStatusOpen,
		ClosesAt:  time.Now().UTC().Add(time.Hour),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestPlacePosition(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")
	f.fund(t, "alice", 500, 0)

	p, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 200)
	require.NoError(t, err)
	require.Equal(t, domain.PositionStatusActive, p.Status)
	require.Equal(t, 200.0, p.Stake)

	coin, _ := f.balances(t, "alice")
	require.Equal(t, 300.0, coin)
	require.Equal(t, 1, f.ledger.Count())
}

func TestPlacePosition_Rejections(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")
	f.fund(t, "alice", 500, 0)

	_, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.PlacePosition(context.Background(), "alice", "m1", "talvez", 100)
	require.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 9999)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.svc.PlacePosition(context.Background(), "alice", "missing", "sim", 100)
	require.ErrorIs(t, err, domain.ErrNotFound)

	coin, _ := f.balances(t, "alice")
	require.Equal(t, 500.0, coin)
	require.Equal(t, 0, f.ledger.Count())
}

func TestPlacePosition_SubCentStakes(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")
	f.fund(t, "alice", 500, 0)

	// A stake that rounds to zero cents never reaches the books.
	_, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 0.004)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.Equal(t, 0, f.ledger.Count())

	// A fractional stake is snapped to cents before the debit, so the
	// ledger row and the stored balance agree exactly.
	p, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 100.004)
	require.NoError(t, err)
	require.Equal(t, 100.0, p.Stake)

	coin, _ := f.balances(t, "alice")
	require.Equal(t, 400.0, coin)

	txs, err := f.ledger.ListByUser(context.Background(), "alice", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, 100.0, txs[0].Amount)
}

func TestPlacePosition_ClosedMarket(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 500, 0)
	err := f.markets.Create(context.Background(), domain.Market{
		ID:       "late",
		Options:  []string{"sim", "nao"},
		Status:   domain.MarketStatusOpen,
		ClosesAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = f.svc.PlacePosition(context.Background(), "alice", "late", "sim", 100)
	require.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestSettleMarket_PariPassu(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")
	f.fund(t, "alice", 1000, 0)
	f.fund(t, "bob", 1000, 0)

	_, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 700)
	require.NoError(t, err)
	_, err = f.svc.PlacePosition(context.Background(), "bob", "m1", "nao", 300)
	require.NoError(t, err)

	res, err := f.svc.SettleMarket(context.Background(), "m1", "sim")
	require.NoError(t, err)
	require.Equal(t, 1, res.PaidCount)
	require.Equal(t, 1, res.LostCount)
	require.Equal(t, 0, res.FailedCount)

	// Multiplier (1000 - 0.2*300)/700; alice gets 700 * that = 940.00 back.
	aliceCoin, _ := f.balances(t, "alice")
	require.Equal(t, 1240.00, aliceCoin)

	bobCoin, _ := f.balances(t, "bob")
	require.Equal(t, 700.00, bobCoin)

	m, err := f.markets.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusResolved, m.Status)
	require.Equal(t, "sim", m.WinningOption)
}

func TestSettleMarket_Idempotent(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")
	f.fund(t, "alice", 1000, 0)
	f.fund(t, "bob", 1000, 0)

	_, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 700)
	require.NoError(t, err)
	_, err = f.svc.PlacePosition(context.Background(), "bob", "m1", "nao", 300)
	require.NoError(t, err)

	_, err = f.svc.SettleMarket(context.Background(), "m1", "sim")
	require.NoError(t, err)
	ledgerRows := f.ledger.Count()

	// Re-running pays nobody twice.
	res, err := f.svc.SettleMarket(context.Background(), "m1", "sim")
	require.NoError(t, err)
	require.Equal(t, 0, res.PaidCount)

	aliceCoin, _ := f.balances(t, "alice")
	require.Equal(t, 1240.00, aliceCoin)
	require.Equal(t, ledgerRows, f.ledger.Count())
}

func TestSettleMarket_ConflictingResolution(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")
	f.fund(t, "alice", 1000, 0)

	_, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 100)
	require.NoError(t, err)

	_, err = f.svc.SettleMarket(context.Background(), "m1", "sim")
	require.NoError(t, err)

	_, err = f.svc.SettleMarket(context.Background(), "m1", "nao")
	require.Error(t, err)
}

func TestSettleMarket_InvalidOption(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")

	_, err := f.svc.SettleMarket(context.Background(), "m1", "talvez")
	require.ErrorIs(t, err, domain.ErrInvalidOption)
}

func TestSettleMarket_OneSidedNoLosers(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")
	f.fund(t, "alice", 1000, 0)

	_, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 500)
	require.NoError(t, err)

	// Only one funded side: multiplier 1, alice gets her stake back.
	res, err := f.svc.SettleMarket(context.Background(), "m1", "sim")
	require.NoError(t, err)
	require.Equal(t, 1, res.PaidCount)

	coin, _ := f.balances(t, "alice")
	require.Equal(t, 1000.00, coin)
}

func TestPoolSnapshot(t *testing.T) {
	f := newFixture(t, Config{})
	f.openMarket(t, "m1", "sim", "nao")
	f.fund(t, "alice", 1000, 0)
	f.fund(t, "bob", 1000, 0)

	_, err := f.svc.PlacePosition(context.Background(), "alice", "m1", "sim", 700)
	require.NoError(t, err)
	_, err = f.svc.PlacePosition(context.Background(), "bob", "m1", "nao", 300)
	require.NoError(t, err)

	snap, err := f.svc.PoolSnapshot(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, 1000.0, snap.TotalPool)
	require.InDelta(t, 940.0/700.0, snap.Multiplier("sim"), 1e-9)
	require.InDelta(t, 860.0/300.0, snap.Multiplier("nao"), 1e-9)
}
