package executor

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
	orders    *memory.OrderStore
	markets   *memory.MarketStore
	positions *memory.PositionStore
	ledger    *memory.LedgerStore
	svc       *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.TradeFeeRate == 0 {
		cfg.TradeFeeRate = 0.02
	}
	if cfg.CancelFeeRate == 0 {
		cfg.CancelFeeRate = 0.01
	}
	if cfg.MaxPriceAge == 0 {
		cfg.MaxPriceAge = 30 * time.Second
	}
	if cfg.OrderRateLimit == 0 {
		cfg.OrderRateLimit = 100
	}

	f := &fixture{
		accounts:  memory.NewAccountStore(),
		orders:    memory.NewOrderStore(),
		markets:   memory.NewMarketStore(),
		positions: memory.NewPositionStore(),
		ledger:    memory.NewLedgerStore(),
	}
	f.svc = NewService(
		f.accounts, f.orders, f.markets, f.positions, f.ledger,
		memory.NewRateLimiter(), memory.NewSignalBus(), cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func (f *fixture) fund(t *testing.T, userID string, coin, fiat float64) {
	t.Helper()
	err := f.accounts.Create(context.Background(), domain.Account{
		UserID:           userID,
		AvailableBalance: coin,
		FiatBalance:      fiat,
	})
	require.NoError(t, err)
}

func (f *fixture) balances(t *testing.T, userID string) (coin, fiat float64) {
	t.Helper()
	acct, err := f.accounts.Get(context.Background(), userID)
	require.NoError(t, err)
	return acct.AvailableBalance, acct.FiatBalance
}

func freshSample(price float64) domain.PriceSample {
	return domain.PriceSample{Symbol: "BTCUSDT", Price: price, ObservedAt: time.Now().UTC()}
}

func TestExecuteMarketOrder_Buy(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 150)

	// 100 brl at price 2.0: fee 2.00, converted (100-2)/2 = 49.00 rioz.
	res, err := f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 100, freshSample(2.0))
	require.NoError(t, err)
	require.Equal(t, 2.00, res.FeeCharged)
	require.Equal(t, 49.00, res.AmountConverted)
	require.Equal(t, 49.00, res.CoinBalance)
	require.Equal(t, 50.00, res.FiatBalance)

	coin, fiat := f.balances(t, "alice")
	require.Equal(t, 49.00, coin)
	require.Equal(t, 50.00, fiat)

	// One debit row and one credit row.
	require.Equal(t, 2, f.ledger.Count())

	o, err := f.orders.GetByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, o.Status)
	require.Equal(t, domain.CurrencyFiat, o.CurrencyIn)
}

func TestExecuteMarketOrder_Sell(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 200, 0)

	// 50 rioz at price 3.0: fee 1.00, converted (50-1)*3 = 147.00 brl.
	res, err := f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideSell, 50, freshSample(3.0))
	require.NoError(t, err)
	require.Equal(t, 147.00, res.AmountConverted)

	coin, fiat := f.balances(t, "alice")
	require.Equal(t, 150.00, coin)
	require.Equal(t, 147.00, fiat)
}

func TestExecuteMarketOrder_InsufficientBalance(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	_, err := f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 500, freshSample(2.0))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Rejected before any mutation.
	coin, fiat := f.balances(t, "alice")
	require.Equal(t, 0.0, coin)
	require.Equal(t, 100.0, fiat)
	require.Equal(t, 0, f.ledger.Count())
}

func TestExecuteMarketOrder_InvalidAmount(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	_, err := f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 0, freshSample(2.0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, -5, freshSample(2.0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	// Below one cent rounds to zero: nothing to debit.
	_, err = f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 0.004, freshSample(2.0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestExecuteMarketOrder_SnapsAmountToCents(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	// 10.004 is debited as 10.00 so the ledger row matches the stored
	// balance exactly, not to within a fraction of a cent.
	_, err := f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 10.004, freshSample(2.0))
	require.NoError(t, err)

	_, fiat := f.balances(t, "alice")
	require.Equal(t, 90.0, fiat)

	txs, err := f.ledger.ListByUser(context.Background(), "alice", domain.ListOpts{})
	require.NoError(t, err)
	for _, tx := range txs {
		if tx.Direction == domain.TxDebit {
			require.Equal(t, 10.0, tx.Amount)
		}
	}
}

func TestExecuteMarketOrder_StalePrice(t *testing.T) {
	f := newFixture(t, Config{MaxPriceAge: 30 * time.Second})
	f.fund(t, "alice", 0, 100)

	stale := domain.PriceSample{
		Symbol:     "BTCUSDT",
		Price:      2.0,
		ObservedAt: time.Now().UTC().Add(-time.Minute),
	}
	_, err := f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 50, stale)
	require.ErrorIs(t, err, domain.ErrStalePrice)
	require.Equal(t, 0, f.ledger.Count())
}

func TestExecuteMarketOrder_RateLimited(t *testing.T) {
	f := newFixture(t, Config{OrderRateLimit: 1, OrderRateWindow: time.Minute})
	f.fund(t, "alice", 0, 1000)

	_, err := f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 10, freshSample(2.0))
	require.NoError(t, err)

	_, err = f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 10, freshSample(2.0))
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestOutputFor(t *testing.T) {
	require.Equal(t, 49.00, outputFor(domain.OrderSideBuy, 98, 2.0))
	require.Equal(t, 147.00, outputFor(domain.OrderSideSell, 49, 3.0))
	// Rounded to cents.
	require.Equal(t, 33.33, outputFor(domain.OrderSideBuy, 100, 3.0))
}
