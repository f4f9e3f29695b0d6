package cashout

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

type fixture struct {
	accounts  *memory.AccountStore
	markets   *memory.MarketStore
	positions *memory.PositionStore
	ledger    *memory.LedgerStore
	quoter    *Quoter
}

func newFixture(t *testing.T, feeRate float64) *fixture {
	t.Helper()
	f := &fixture{
		accounts:  memory.NewAccountStore(),
		markets:   memory.NewMarketStore(),
		positions: memory.NewPositionStore(),
		ledger:    memory.NewLedgerStore(),
	}
	f.quoter = NewQuoter(
		f.accounts, f.markets, f.positions, f.ledger,
		memory.NewSignalBus(), feeRate,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

// seedMarket builds a 400-coin market: alice has 100 on "sim", bob 300 on
// "nao". The live multiplier for "sim" is (400 - 0.2*300)/100 = 3.4.
func (f *fixture) seedMarket(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.markets.Create(ctx, domain.Market{
		ID:       "m1",
		Options:  []string{"sim", "nao"},
		Status:   domain.MarketStatusOpen,
		ClosesAt: time.Now().UTC().Add(time.Hour),
	}))
	require.NoError(t, f.accounts.Create(ctx, domain.Account{UserID: "alice", AvailableBalance: 900}))
	require.NoError(t, f.accounts.Create(ctx, domain.Account{UserID: "bob", AvailableBalance: 700}))

	require.NoError(t, f.positions.Create(ctx, domain.Position{
		ID: "p-alice", UserID: "alice", MarketID: "m1",
		OptionChosen: "sim", Stake: 100,
		Status: domain.PositionStatusActive, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, f.positions.Create(ctx, domain.Position{
		ID: "p-bob", UserID: "bob", MarketID: "m1",
		OptionChosen: "nao", Stake: 300,
		Status: domain.PositionStatusActive, CreatedAt: time.Now().UTC(),
	}))
}

func TestQuoteCashout(t *testing.T) {
	f := newFixture(t, 0.05)
	f.seedMarket(t)

	q, err := f.quoter.QuoteCashout(context.Background(), "p-alice")
	require.NoError(t, err)
	require.InDelta(t, 3.4, q.MultipleNow, 1e-9)
	require.Equal(t, 340.00, q.Gross)
	require.Equal(t, 17.00, q.Fee)
	require.Equal(t, 323.00, q.Net)
}

func TestQuoteCashout_InactivePosition(t *testing.T) {
	f := newFixture(t, 0.05)
	f.seedMarket(t)
	require.NoError(t, f.positions.Transition(context.Background(),
		"p-alice", domain.PositionStatusActive, domain.PositionStatusLost, time.Now().UTC()))

	_, err := f.quoter.QuoteCashout(context.Background(), "p-alice")
	require.ErrorIs(t, err, domain.ErrNotActive)
}

func TestPerformCashout(t *testing.T) {
	f := newFixture(t, 0.05)
	f.seedMarket(t)

	q, err := f.quoter.PerformCashout(context.Background(), "p-alice", "alice")
	require.NoError(t, err)
	require.Equal(t, 323.00, q.Net)

	acct, err := f.accounts.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 1223.00, acct.AvailableBalance)

	p, err := f.positions.GetByID(context.Background(), "p-alice")
	require.NoError(t, err)
	require.Equal(t, domain.PositionStatusCashedOut, p.Status)

	require.Equal(t, 1, f.ledger.Count())
}

func TestPerformCashout_Twice(t *testing.T) {
	f := newFixture(t, 0.05)
	f.seedMarket(t)

	_, err := f.quoter.PerformCashout(context.Background(), "p-alice", "alice")
	require.NoError(t, err)

	// Second attempt loses the status guard: exactly one credit ever lands.
	_, err = f.quoter.PerformCashout(context.Background(), "p-alice", "alice")
	require.ErrorIs(t, err, domain.ErrNotActive)

	acct, err := f.accounts.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 1223.00, acct.AvailableBalance)
	require.Equal(t, 1, f.ledger.Count())
}

func TestPerformCashout_NotOwner(t *testing.T) {
	f := newFixture(t, 0.05)
	f.seedMarket(t)

	_, err := f.quoter.PerformCashout(context.Background(), "p-alice", "bob")
	require.ErrorIs(t, err, domain.ErrNotOwner)

	p, err := f.positions.GetByID(context.Background(), "p-alice")
	require.NoError(t, err)
	require.Equal(t, domain.PositionStatusActive, p.Status)
}

func TestQuote_NetNeverNegative(t *testing.T) {
	// A fee rate above 100% must clamp the net to zero rather than debit.
	f := newFixture(t, 1.5)
	f.seedMarket(t)

	q, err := f.quoter.QuoteCashout(context.Background(), "p-alice")
	require.NoError(t, err)
	require.Equal(t, 0.0, q.Net)
}
