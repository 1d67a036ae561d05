package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "blocktrader/internal/blob/s3"
	"blocktrader/internal/broker"
	"blocktrader/internal/engine"
	"blocktrader/internal/feed"
	"blocktrader/internal/sched"
	"blocktrader/internal/server"
	"blocktrader/internal/server/handler"
	"blocktrader/internal/service"
)

// components holds the engine and service objects shared across modes.
type components struct {
	prices     *engine.PriceSource
	dispatcher *engine.Dispatcher
	scheduler  *sched.Scheduler
	ladderSvc  *service.LadderService
	statsSvc   *service.StatsService
}

// build constructs the engine components from wired dependencies.
func (a *App) build(deps *Dependencies) *components {
	retry := engine.RetryPolicy{
		Attempts:  a.cfg.Engine.RetryAttempts,
		BaseDelay: a.cfg.Engine.RetryBaseDelay.Duration,
		MaxDelay:  a.cfg.Engine.RetryMaxDelay.Duration,
	}

	prices := engine.NewPriceSource(deps.Broker, deps.PriceCache, retry)

	orchestrator := engine.NewOrchestrator(
		deps.Ladders, deps.Blocks, deps.Accounts, deps.Symbols,
		deps.Broker, prices, retry, a.logger,
	)
	ranges := engine.NewRangeManager(deps.Ladders, deps.Blocks, deps.Accounts, prices, a.logger)
	reconciler := engine.NewReconciler(
		deps.Blocks, deps.Closed, deps.Accounts, deps.Broker, deps.SignalBus, retry, a.logger,
	).WithDayCloseStyle(engine.DayCloseStyle(a.cfg.Engine.DayCloseStyle))

	var exporter engine.SnapshotExporter
	if deps.BlobWriter != nil {
		exporter = s3blob.NewArchiver(deps.BlobWriter, deps.Closed)
	}
	closer := engine.NewCloser(
		deps.Symbols, deps.Blocks, deps.Closed, deps.Condensed,
		deps.Broker, deps.Locks, exporter, retry,
		a.cfg.Engine.CancelTimeout.Duration, a.logger,
	)

	scheduler := sched.NewScheduler(
		deps.Ladders, deps.SignalBus,
		a.cfg.Engine.OrderInterval.Duration,
		a.cfg.Engine.RangeInterval.Duration,
		a.logger,
	)

	return &components{
		prices:     prices,
		dispatcher: engine.NewDispatcher(deps.SignalBus, orchestrator, ranges, reconciler, closer, a.logger),
		scheduler:  scheduler,
		ladderSvc:  service.NewLadderService(deps.Ladders, deps.Blocks, deps.Accounts, deps.Symbols, prices, a.logger),
		statsSvc:   service.NewStatsService(deps.Blocks, deps.Closed, deps.Condensed, a.logger),
	}
}

// TradeMode starts the dispatcher, the fill feeders, and the scheduler loops.
// The HTTP API is also started when server.enabled is true.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	c := a.build(deps)
	g, ctx := errgroup.WithContext(ctx)

	a.startEngine(ctx, g, deps, c)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, c)
	}

	return g.Wait()
}

// ServerMode starts only the HTTP API: ladder management, stats, and the
// close-out endpoint. No orders are placed automatically.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	c := a.build(deps)
	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, c)

	return g.Wait()
}

// FullMode starts all subsystems: the trading engine and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	c := a.build(deps)
	g, ctx := errgroup.WithContext(ctx)

	a.startEngine(ctx, g, deps, c)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, c)
	}

	return g.Wait()
}

// startEngine adds the dispatcher, scheduler loops, and one fill feeder per
// configured brokerage account to the errgroup.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *components) {
	g.Go(func() error { return c.dispatcher.Run(ctx) })
	g.Go(func() error { return c.scheduler.RunOrderLoop(ctx) })
	g.Go(func() error { return c.scheduler.RunRangeLoop(ctx) })

	if len(a.cfg.Broker.Accounts) == 0 {
		a.logger.WarnContext(ctx, "no broker accounts configured, fill stream disabled")
		return
	}
	for userID, acct := range a.cfg.Broker.Accounts {
		feeder := feed.NewFillFeeder(
			a.cfg.Broker.WSURL,
			userID,
			broker.Credentials{KeyID: acct.ApiKeyID, Secret: acct.ApiSecret},
			deps.SignalBus,
			a.logger,
		)
		g.Go(func() error { return feeder.Run(ctx) })
	}
}

// startHTTPServer adds the HTTP API server and its shutdown watcher to the
// errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, c *components) {
	srv := server.NewServer(
		server.Config{Port: a.cfg.Server.Port, APIKey: a.cfg.Server.ApiKey},
		server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Ladders:  handler.NewLadderHandler(c.ladderSvc, c.statsSvc, a.logger),
			CloseOut: handler.NewCloseOutHandler(c.dispatcher, a.logger),
		},
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
