// Package jobs runs the background loops of the settlement engine: the price
// feed, fast-pool round rollover and settlement, limit-order execution and
// expiry, the feed watchdog, ledger reconciliation, and the monthly archive
// export.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riozmarkets/settlement/internal/blob/s3"
	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/executor"
	"github.com/riozmarkets/settlement/internal/fastpool"
	"github.com/riozmarkets/settlement/internal/notify"
	"github.com/riozmarkets/settlement/internal/oracle"
	"github.com/riozmarkets/settlement/internal/reconcile"
)

// Config holds the loop intervals and the reference symbol used to price
// limit-order batches.
type Config struct {
	RoundTick         time.Duration
	LimitBatch        time.Duration
	OrderExpiry       time.Duration
	LimitOrderMaxAge  time.Duration
	ReconcileInterval time.Duration
	WatchdogInterval  time.Duration
	ArchiveInterval   time.Duration
	ReferenceSymbol   string
}

// Orchestrator manages all background goroutines. Feed, watchdog, and
// archiver may be nil; their loops are skipped.
type Orchestrator struct {
	feed      *oracle.Feed
	watchdog  *oracle.Watchdog
	scheduler *fastpool.Scheduler
	exec      *executor.Service
	validator *reconcile.Validator
	archiver  *s3blob.Archiver
	prices    domain.PriceOracle
	notifier  *notify.Notifier
	cfg       Config
	logger    *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all background
// sub-systems.
func NewOrchestrator(
	feed *oracle.Feed,
	watchdog *oracle.Watchdog,
	scheduler *fastpool.Scheduler,
	exec *executor.Service,
	validator *reconcile.Validator,
	archiver *s3blob.Archiver,
	prices domain.PriceOracle,
	notifier *notify.Notifier,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		feed:      feed,
		watchdog:  watchdog,
		scheduler: scheduler,
		exec:      exec,
		validator: validator,
		archiver:  archiver,
		prices:    prices,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "jobs")),
	}
}

// Run starts all background loops as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run returns
// that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("jobs orchestrator starting",
		slog.Duration("round_tick", o.cfg.RoundTick),
		slog.Duration("limit_batch", o.cfg.LimitBatch),
		slog.Duration("reconcile_interval", o.cfg.ReconcileInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	// 1. Price feed.
	if o.feed != nil {
		g.Go(func() error {
			o.logger.Info("starting price feed")
			err := o.feed.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("price feed: %w", err)
		})
	}

	// 2. Feed watchdog.
	if o.watchdog != nil {
		g.Go(func() error {
			o.logger.Info("starting feed watchdog")
			err := o.watchdog.Run(ctx, o.cfg.WatchdogInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("feed watchdog: %w", err)
		})
	}

	// 3. Fast-pool rollover + settlement on one tick, so a round is never
	// settled before its successor exists.
	g.Go(func() error {
		o.logger.Info("starting fast-pool round loop")
		err := o.runRounds(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("fast-pool rounds: %w", err)
	})

	// 4. Limit-order execution batch.
	g.Go(func() error {
		o.logger.Info("starting limit batch loop")
		err := o.runLimitBatch(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("limit batch: %w", err)
	})

	// 5. Limit-order expiry sweep.
	g.Go(func() error {
		o.logger.Info("starting order expiry loop")
		err := o.runOrderExpiry(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("order expiry: %w", err)
	})

	// 6. Ledger reconciliation sweep.
	g.Go(func() error {
		o.logger.Info("starting reconciliation loop")
		err := o.runReconcile(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("reconciliation: %w", err)
	})

	// 7. Archive export.
	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archive loop")
			err := o.runArchive(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("jobs orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("jobs orchestrator stopped cleanly")
	return nil
}

// runRounds opens missing rounds and settles due ones on every tick. Both
// passes are idempotent so a failed tick is simply retried on the next one.
func (o *Orchestrator) runRounds(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.RoundTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := o.scheduler.EnsureRounds(ctx); err != nil {
				o.logger.Error("round rollover failed", slog.String("error", err.Error()))
			}
			res, err := o.scheduler.SettleDue(ctx)
			if err != nil {
				o.logger.Error("round settlement failed", slog.String("error", err.Error()))
				continue
			}
			if res.FailedCount > 0 && o.notifier != nil {
				if err := o.notifier.AlertSettleFailed(ctx, res.FailedCount); err != nil {
					o.logger.Warn("settle alert failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// runLimitBatch prices and fills pending limit orders against the reference
// symbol. A missing or stale sample skips the pass; the batch itself reports
// stale prices in its result rather than as an error.
func (o *Orchestrator) runLimitBatch(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.LimitBatch)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sample, err := o.prices.GetCurrentPrice(ctx, o.cfg.ReferenceSymbol)
			if err != nil {
				o.logger.Warn("no reference price for limit batch", slog.String("error", err.Error()))
				continue
			}
			res, err := o.exec.ExecuteLimitBatch(ctx, sample)
			if err != nil {
				o.logger.Error("limit batch failed", slog.String("error", err.Error()))
				continue
			}
			if res.ExecutedCount > 0 || res.FailedCount > 0 {
				o.logger.Info("limit batch done",
					slog.Int("executed", res.ExecutedCount),
					slog.Int("failed", res.FailedCount),
				)
			}
		}
	}
}

func (o *Orchestrator) runOrderExpiry(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.OrderExpiry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := o.exec.ExpireLimitOrders(ctx, o.cfg.LimitOrderMaxAge)
			if err != nil {
				o.logger.Error("order expiry failed", slog.String("error", err.Error()))
				continue
			}
			if res.ExpiredCount > 0 {
				o.logger.Info("expired stale limit orders", slog.Int("count", res.ExpiredCount))
			}
		}
	}
}

func (o *Orchestrator) runReconcile(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := o.validator.Validate(ctx); err != nil {
				o.logger.Error("reconciliation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runArchive exports everything older than the start of the current month.
// The export is keyed by month so re-running it overwrites the same objects,
// making the loop safe to run far more often than data ages out.
func (o *Orchestrator) runArchive(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UTC()
			before := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

			if n, err := o.archiver.ArchiveRounds(ctx, before); err != nil {
				o.logger.Error("round archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				o.logger.Info("archived rounds", slog.Int64("count", n))
			}
			if n, err := o.archiver.ArchiveLedger(ctx, before); err != nil {
				o.logger.Error("ledger archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				o.logger.Info("archived ledger entries", slog.Int64("count", n))
			}
			if n, err := o.archiver.ArchiveReports(ctx, before); err != nil {
				o.logger.Error("report archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				o.logger.Info("archived reports", slog.Int64("count", n))
			}
		}
	}
}
