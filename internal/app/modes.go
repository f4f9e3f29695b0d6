package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riozmarkets/settlement/internal/cashout"
	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/executor"
	"github.com/riozmarkets/settlement/internal/fastpool"
	"github.com/riozmarkets/settlement/internal/jobs"
	"github.com/riozmarkets/settlement/internal/notify"
	"github.com/riozmarkets/settlement/internal/oracle"
	"github.com/riozmarkets/settlement/internal/reconcile"
	"github.com/riozmarkets/settlement/internal/server"
	"github.com/riozmarkets/settlement/internal/server/handler"
	"github.com/riozmarkets/settlement/internal/server/ws"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// services bundles the domain services shared by the HTTP surface and the
// background jobs.
type services struct {
	oracle    *oracle.CachedOracle
	exec      *executor.Service
	quoter    *cashout.Quoter
	scheduler *fastpool.Scheduler
	validator *reconcile.Validator
	pauser    *alertingRefunder
}

// alertingRefunder pauses and refunds an asset's pools and then notifies
// operators. It fronts the scheduler for both the feed watchdog and the
// admin pause endpoint so every pause is alerted the same way.
type alertingRefunder struct {
	scheduler *fastpool.Scheduler
	notifier  *notify.Notifier
}

func (r *alertingRefunder) PauseAndRefund(ctx context.Context, assetSymbol string) (domain.RefundResult, error) {
	res, err := r.scheduler.PauseAndRefund(ctx, assetSymbol)
	if err != nil {
		return res, err
	}
	_ = r.notifier.AlertFeedPaused(ctx, assetSymbol, res)
	return res, nil
}

// buildServices wires the domain services on top of the shared dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	priceOracle := oracle.NewCachedOracle(deps.PriceCache)

	exec := executor.NewService(
		deps.AccountStore,
		deps.OrderStore,
		deps.MarketStore,
		deps.PositionStore,
		deps.LedgerStore,
		deps.RateLimiter,
		deps.SignalBus,
		executor.Config{
			TradeFeeRate:    a.cfg.Trading.TradeFeeRate,
			CancelFeeRate:   a.cfg.Trading.CancelFeeRate,
			MaxPriceAge:     a.cfg.Oracle.MaxPriceAge.Duration,
			OrderRateLimit:  a.cfg.Trading.OrderRateLimit,
			OrderRateWindow: a.cfg.Trading.OrderRateWindow.Duration,
		},
		a.logger,
	)

	quoter := cashout.NewQuoter(
		deps.AccountStore,
		deps.MarketStore,
		deps.PositionStore,
		deps.LedgerStore,
		deps.SignalBus,
		a.cfg.Trading.CashoutFeeRate,
		a.logger,
	)

	assets := make([]fastpool.Asset, 0, len(a.cfg.FastPool.Assets))
	for _, fa := range a.cfg.FastPool.Assets {
		assets = append(assets, fastpool.Asset{Symbol: fa.Symbol, Category: fa.Category})
	}
	scheduler := fastpool.NewScheduler(
		deps.FastPoolStore,
		deps.FastPoolBetStore,
		deps.AccountStore,
		deps.LedgerStore,
		priceOracle,
		deps.LockManager,
		deps.RateLimiter,
		deps.SignalBus,
		fastpool.Config{
			Assets:        assets,
			BaseOdds:      a.cfg.FastPool.BaseOdds,
			BetRateLimit:  a.cfg.FastPool.BetRateLimit,
			BetRateWindow: a.cfg.FastPool.BetRateWindow.Duration,
		},
		a.logger,
	)

	validator := reconcile.NewValidator(
		deps.AccountStore,
		deps.LedgerStore,
		deps.ReportStore,
		deps.SignalBus,
		deps.Notifier,
		a.cfg.Reconcile.UrgentThreshold,
		a.logger,
	)

	return &services{
		oracle:    priceOracle,
		exec:      exec,
		quoter:    quoter,
		scheduler: scheduler,
		validator: validator,
		pauser:    &alertingRefunder{scheduler: scheduler, notifier: deps.Notifier},
	}
}

// startHTTPServer builds the handler set, the WebSocket hub, and the API
// server, and registers their goroutines on the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	referenceSymbol := a.cfg.Oracle.Symbols[0]

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(),
		Markets:   handler.NewMarketHandler(deps.MarketStore, deps.PositionStore, svcs.exec, a.logger),
		Orders:    handler.NewOrderHandler(svcs.exec, deps.OrderStore, svcs.oracle, referenceSymbol, a.logger),
		Cashout:   handler.NewCashoutHandler(svcs.quoter, a.logger),
		FastPools: handler.NewFastPoolHandler(svcs.scheduler, deps.FastPoolStore, deps.FastPoolBetStore, a.logger),
		Wallet:    handler.NewWalletHandler(deps.AccountStore, deps.LedgerStore, a.logger),
		Admin:     handler.NewAdminHandler(svcs.exec, svcs.pauser, svcs.validator, deps.ReportStore, a.logger),
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.ApiKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		handlers,
		hub,
		deps.AdminAuth,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		err := srv.Start()
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// newOrchestrator wires the background jobs on top of the shared services.
func (a *App) newOrchestrator(deps *Dependencies, svcs *services) *jobs.Orchestrator {
	feed := oracle.NewFeed(
		a.cfg.Oracle.WsHost,
		a.cfg.Oracle.Symbols,
		deps.PriceCache,
		deps.SignalBus,
		a.logger,
	)

	watched := make([]string, 0, len(a.cfg.FastPool.Assets))
	for _, fa := range a.cfg.FastPool.Assets {
		watched = append(watched, fa.Symbol)
	}
	watchdog := oracle.NewWatchdog(
		svcs.oracle,
		svcs.pauser,
		watched,
		a.cfg.Oracle.MaxPriceAge.Duration,
		a.logger,
	)

	return jobs.NewOrchestrator(
		feed,
		watchdog,
		svcs.scheduler,
		svcs.exec,
		svcs.validator,
		deps.Archiver,
		svcs.oracle,
		deps.Notifier,
		jobs.Config{
			RoundTick:         a.cfg.Jobs.RoundTick.Duration,
			LimitBatch:        a.cfg.Jobs.LimitBatch.Duration,
			OrderExpiry:       a.cfg.Jobs.OrderExpiry.Duration,
			LimitOrderMaxAge:  a.cfg.Trading.LimitOrderMaxAge.Duration,
			ReconcileInterval: a.cfg.Reconcile.Interval.Duration,
			WatchdogInterval:  a.cfg.Jobs.Watchdog.Duration,
			ArchiveInterval:   a.cfg.Jobs.Archive.Duration,
			ReferenceSymbol:   a.cfg.Oracle.Symbols[0],
		},
		a.logger,
	)
}

// ServeMode runs the HTTP + WebSocket API only. Prices and settlements are
// expected to come from a separate jobs-mode process sharing the same
// database and Redis.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// JobsMode runs the background loops only: price feed, watchdog, fast-pool
// rounds, limit batches, expiry, reconciliation, and the archive export.
func (a *App) JobsMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting jobs mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	orch := a.newOrchestrator(deps, svcs)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	return g.Wait()
}

// FullMode runs the API server and all background loops in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	orch := a.newOrchestrator(deps, svcs)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}
