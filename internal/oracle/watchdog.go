package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
)

// PauseRefunder is the slice of the fast-pool scheduler the watchdog needs.
type PauseRefunder interface {
	PauseAndRefund(ctx context.Context, assetSymbol string) (domain.RefundResult, error)
}

// Watchdog monitors sample age per symbol and, once a feed has been silent
// beyond the threshold, pauses the symbol's fast pools and refunds open bets.
// Settling rounds against a price from before an outage would be settling
// against noise.
type Watchdog struct {
	oracle    domain.PriceOracle
	refunder  PauseRefunder
	symbols   []string
	threshold time.Duration
	logger    *slog.Logger

	// tripped tracks symbols already handled so a long outage triggers the
	// refund path once, not once per check.
	tripped map[string]bool
}

// NewWatchdog creates a Watchdog for the given symbols and silence threshold.
func NewWatchdog(oracle domain.PriceOracle, refunder PauseRefunder, symbols []string, threshold time.Duration, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		oracle:    oracle,
		refunder:  refunder,
		symbols:   symbols,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "feed_watchdog")),
		tripped:   make(map[string]bool),
	}
}

// Check inspects every symbol once. A symbol whose latest sample is older
// than the threshold (or missing entirely) is treated as unreliable.
func (w *Watchdog) Check(ctx context.Context) {
	now := time.Now().UTC()
	for _, sym := range w.symbols {
		sample, err := w.oracle.GetCurrentPrice(ctx, sym)
		stale := err != nil || !sample.Fresh(w.threshold, now)

		if !stale {
			if w.tripped[sym] {
				w.logger.InfoContext(ctx, "feed recovered", slog.String("symbol", sym))
				w.tripped[sym] = false
			}
			continue
		}
		if w.tripped[sym] {
			continue
		}

		w.logger.ErrorContext(ctx, "feed unreliable, pausing fast pools",
			slog.String("symbol", sym),
			slog.Duration("threshold", w.threshold),
		)
		res, rerr := w.refunder.PauseAndRefund(ctx, sym)
		if rerr != nil {
			w.logger.ErrorContext(ctx, "pause and refund failed",
				slog.String("symbol", sym),
				slog.String("error", rerr.Error()),
			)
			continue // retried on the next check
		}
		if res.FailedBets > 0 {
			// Stay untripped so the next check runs PauseAndRefund again
			// for the bets that did not refund.
			w.logger.WarnContext(ctx, "fast pools paused with unrefunded bets",
				slog.String("symbol", sym),
				slog.Int("refunded", res.RefundedBets),
				slog.Int("failed", res.FailedBets),
			)
			continue
		}
		w.tripped[sym] = true
		w.logger.InfoContext(ctx, "fast pools paused",
			slog.String("symbol", sym),
			slog.Int("paused", res.PausedPools),
			slog.Int("refunded", res.RefundedBets),
		)
	}
}

// Run checks on a fixed cadence until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}
