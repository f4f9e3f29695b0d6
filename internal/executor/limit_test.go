package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riozmarkets/settlement/internal/domain"
)

func TestPlaceLimitOrder_SubCentAmounts(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	_, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 0.004, 2.0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.Equal(t, 0, f.ledger.Count())

	// Fractional amounts are snapped to cents before the reserve.
	res, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 10.004, 2.0)
	require.NoError(t, err)

	o, err := f.orders.GetByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, 10.0, o.AmountIn)

	_, fiat := f.balances(t, "alice")
	require.Equal(t, 90.0, fiat)
}

func TestPlaceLimitOrder_ReservesInput(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	res, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 100, 2.0)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, res.Status)

	// Full input reserved up front, nothing converted yet.
	coin, fiat := f.balances(t, "alice")
	require.Equal(t, 0.0, coin)
	require.Equal(t, 0.0, fiat)
	require.Equal(t, 1, f.ledger.Count())

	o, err := f.orders.GetByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderTypeLimit, o.Type)
	require.Equal(t, 2.0, o.LimitPrice)
	require.Equal(t, 0.0, o.AmountOut)
}

func TestExecuteLimitBatch_FillsMatchedOrders(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)
	f.fund(t, "bob", 0, 100)

	// Alice's buy at 2.00 matches a price of 1.96; Bob's buy at 1.50 does not.
	_, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 100, 2.0)
	require.NoError(t, err)
	_, err = f.svc.PlaceLimitOrder(context.Background(), "bob", domain.OrderSideBuy, 100, 1.5)
	require.NoError(t, err)

	res, err := f.svc.ExecuteLimitBatch(context.Background(), freshSample(1.96))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 1, res.ExecutedCount)
	require.Equal(t, 1, res.SkippedCount)
	require.Equal(t, 0, res.FailedCount)

	// Fee 2.00, converted (100-2)/1.96 = 50.00 rioz.
	coin, _ := f.balances(t, "alice")
	require.Equal(t, 50.00, coin)

	// Bob's order still resting.
	bobCoin, bobFiat := f.balances(t, "bob")
	require.Equal(t, 0.0, bobCoin)
	require.Equal(t, 0.0, bobFiat)
}

func TestExecuteLimitBatch_SellFillsAtOrAboveLimit(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 50, 0)

	_, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideSell, 50, 3.0)
	require.NoError(t, err)

	// Below the limit: skipped.
	res, err := f.svc.ExecuteLimitBatch(context.Background(), freshSample(2.9))
	require.NoError(t, err)
	require.Equal(t, 0, res.ExecutedCount)
	require.Equal(t, 1, res.SkippedCount)

	// At the limit: fee 1.00, converted (50-1)*3 = 147.00 brl.
	res, err = f.svc.ExecuteLimitBatch(context.Background(), freshSample(3.0))
	require.NoError(t, err)
	require.Equal(t, 1, res.ExecutedCount)

	_, fiat := f.balances(t, "alice")
	require.Equal(t, 147.00, fiat)
}

func TestExecuteLimitBatch_StaleSampleSkipsWholeBatch(t *testing.T) {
	f := newFixture(t, Config{MaxPriceAge: 30 * time.Second})
	f.fund(t, "alice", 0, 100)

	_, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 100, 100.0)
	require.NoError(t, err)

	stale := domain.PriceSample{
		Symbol:     "BTCUSDT",
		Price:      1.0,
		ObservedAt: time.Now().UTC().Add(-time.Minute),
	}
	res, err := f.svc.ExecuteLimitBatch(context.Background(), stale)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 0, res.ExecutedCount)

	// The order never executed against the stale price.
	coin, _ := f.balances(t, "alice")
	require.Equal(t, 0.0, coin)
}

func TestCancelLimitOrder(t *testing.T) {
	f := newFixture(t, Config{CancelFeeRate: 0.01})
	f.fund(t, "alice", 0, 100)

	res, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 100, 2.0)
	require.NoError(t, err)

	err = f.svc.CancelLimitOrder(context.Background(), res.OrderID, "alice")
	require.NoError(t, err)

	// Penalty 1.00, refund 99.00.
	_, fiat := f.balances(t, "alice")
	require.Equal(t, 99.00, fiat)

	o, err := f.orders.GetByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, o.Status)

	// reserve debit + refund credit
	require.Equal(t, 2, f.ledger.Count())
}

func TestCancelLimitOrder_NotOwner(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	res, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 100, 2.0)
	require.NoError(t, err)

	err = f.svc.CancelLimitOrder(context.Background(), res.OrderID, "mallory")
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestCancelLimitOrder_DoubleCancel(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	res, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 100, 2.0)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelLimitOrder(context.Background(), res.OrderID, "alice"))
	err = f.svc.CancelLimitOrder(context.Background(), res.OrderID, "alice")
	require.ErrorIs(t, err, domain.ErrNotPending)

	// Exactly one refund.
	_, fiat := f.balances(t, "alice")
	require.Equal(t, 99.00, fiat)
}

func TestCancelLimitOrder_FilledOrderRejected(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	res, err := f.svc.ExecuteMarketOrder(context.Background(), "alice", domain.OrderSideBuy, 100, freshSample(2.0))
	require.NoError(t, err)

	err = f.svc.CancelLimitOrder(context.Background(), res.OrderID, "alice")
	require.ErrorIs(t, err, domain.ErrNotPending)
}

func TestExpireLimitOrders(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	res, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 100, 2.0)
	require.NoError(t, err)

	// maxAge zero makes every resting order due; refund is the full reserve.
	exp, err := f.svc.ExpireLimitOrders(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, exp.ExpiredCount)
	require.Equal(t, 0, exp.FailedCount)

	_, fiat := f.balances(t, "alice")
	require.Equal(t, 100.00, fiat)

	o, err := f.orders.GetByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusExpired, o.Status)

	// Re-running finds nothing pending.
	exp, err = f.svc.ExpireLimitOrders(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 0, exp.ExpiredCount)
}

func TestExpireLimitOrders_YoungOrdersUntouched(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "alice", 0, 100)

	_, err := f.svc.PlaceLimitOrder(context.Background(), "alice", domain.OrderSideBuy, 100, 2.0)
	require.NoError(t, err)

	exp, err := f.svc.ExpireLimitOrders(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, exp.ExpiredCount)

	_, fiat := f.balances(t, "alice")
	require.Equal(t, 0.0, fiat)
}
