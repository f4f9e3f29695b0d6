package oracle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riozmarkets/settlement/internal/domain"
)

type stubPrices struct {
	samples map[string]domain.PriceSample
}

func (s *stubPrices) GetCurrentPrice(_ context.Context, symbol string) (domain.PriceSample, error) {
	sample, ok := s.samples[symbol]
	if !ok {
		return domain.PriceSample{}, domain.ErrNotFound
	}
	return sample, nil
}

type stubRefunder struct {
	calls      []string
	err        error
	failedBets int
}

func (r *stubRefunder) PauseAndRefund(_ context.Context, assetSymbol string) (domain.RefundResult, error) {
	r.calls = append(r.calls, assetSymbol)
	return domain.RefundResult{
		Success:     r.err == nil && r.failedBets == 0,
		PausedPools: 1,
		FailedBets:  r.failedBets,
	}, r.err
}

func newWatchdog(prices *stubPrices, refunder *stubRefunder, symbols ...string) *Watchdog {
	return NewWatchdog(prices, refunder, symbols, 30*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWatchdog_FreshFeedUntouched(t *testing.T) {
	prices := &stubPrices{samples: map[string]domain.PriceSample{
		"BTCUSDT": {Symbol: "BTCUSDT", Price: 50000, ObservedAt: time.Now().UTC()},
	}}
	refunder := &stubRefunder{}

	newWatchdog(prices, refunder, "BTCUSDT").Check(context.Background())
	require.Empty(t, refunder.calls)
}

func TestWatchdog_StaleFeedPausesOnce(t *testing.T) {
	prices := &stubPrices{samples: map[string]domain.PriceSample{
		"BTCUSDT": {Symbol: "BTCUSDT", Price: 50000, ObservedAt: time.Now().UTC().Add(-time.Minute)},
	}}
	refunder := &stubRefunder{}
	w := newWatchdog(prices, refunder, "BTCUSDT")

	// A long outage trips the refund path exactly once.
	w.Check(context.Background())
	w.Check(context.Background())
	w.Check(context.Background())
	require.Equal(t, []string{"BTCUSDT"}, refunder.calls)
}

func TestWatchdog_MissingFeedIsStale(t *testing.T) {
	refunder := &stubRefunder{}
	w := newWatchdog(&stubPrices{samples: map[string]domain.PriceSample{}}, refunder, "BTCUSDT")

	w.Check(context.Background())
	require.Equal(t, []string{"BTCUSDT"}, refunder.calls)
}

func TestWatchdog_RecoveryRearms(t *testing.T) {
	prices := &stubPrices{samples: map[string]domain.PriceSample{
		"BTCUSDT": {Symbol: "BTCUSDT", Price: 50000, ObservedAt: time.Now().UTC().Add(-time.Minute)},
	}}
	refunder := &stubRefunder{}
	w := newWatchdog(prices, refunder, "BTCUSDT")

	w.Check(context.Background())
	require.Len(t, refunder.calls, 1)

	// Feed comes back: the trip latch resets.
	prices.samples["BTCUSDT"] = domain.PriceSample{Symbol: "BTCUSDT", Price: 50100, ObservedAt: time.Now().UTC()}
	w.Check(context.Background())

	// A second outage trips again.
	prices.samples["BTCUSDT"] = domain.PriceSample{Symbol: "BTCUSDT", Price: 50100, ObservedAt: time.Now().UTC().Add(-time.Minute)}
	w.Check(context.Background())
	require.Len(t, refunder.calls, 2)
}

func TestWatchdog_RefundFailureRetriesNextCheck(t *testing.T) {
	prices := &stubPrices{samples: map[string]domain.PriceSample{}}
	refunder := &stubRefunder{err: context.DeadlineExceeded}
	w := newWatchdog(prices, refunder, "BTCUSDT")

	w.Check(context.Background())
	require.Len(t, refunder.calls, 1)

	// Failure leaves the symbol untripped so the next sweep tries again.
	refunder.err = nil
	w.Check(context.Background())
	require.Len(t, refunder.calls, 2)

	w.Check(context.Background())
	require.Len(t, refunder.calls, 2)
}

func TestWatchdog_PartialRefundRetriesNextCheck(t *testing.T) {
	prices := &stubPrices{samples: map[string]domain.PriceSample{}}
	refunder := &stubRefunder{failedBets: 2}
	w := newWatchdog(prices, refunder, "BTCUSDT")

	// Pools paused but some bets failed to refund: the symbol stays
	// untripped so the sweep keeps retrying the leftovers.
	w.Check(context.Background())
	w.Check(context.Background())
	require.Len(t, refunder.calls, 2)

	refunder.failedBets = 0
	w.Check(context.Background())
	require.Len(t, refunder.calls, 3)

	// Every bet refunded: the latch finally engages.
	w.Check(context.Background())
	require.Len(t, refunder.calls, 3)
}

func TestWatchdog_OnlyWatchedSymbols(t *testing.T) {
	prices := &stubPrices{samples: map[string]domain.PriceSample{
		"BTCUSDT": {Symbol: "BTCUSDT", Price: 50000, ObservedAt: time.Now().UTC()},
	}}
	refunder := &stubRefunder{}

	// ETHUSDT has no feed but is not on the watch list.
	newWatchdog(prices, refunder, "BTCUSDT").Check(context.Background())
	require.Empty(t, refunder.calls)
}
