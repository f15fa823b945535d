package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uuzor/predictx/internal/server"
	"github.com/uuzor/predictx/internal/server/handler"
	"github.com/uuzor/predictx/internal/server/ws"
	"github.com/uuzor/predictx/internal/service"
	"github.com/uuzor/predictx/internal/settlement"
)

// shutdownGrace bounds how long the HTTP server drains in-flight requests
// after the run context is cancelled.
const shutdownGrace = 10 * time.Second

// ServeMode runs the gateway connection and the HTTP + WebSocket API without
// the settlement loop.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Gateway.Run(ctx) })
	a.startNotifier(ctx, g, deps)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// SettleMode runs the gateway connection and the settlement scheduler without
// the HTTP surface.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Gateway.Run(ctx) })
	a.startNotifier(ctx, g, deps)
	a.startScheduler(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything: gateway, settlement scheduler, archiver, and the
// HTTP + WebSocket API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Gateway.Run(ctx) })
	a.startNotifier(ctx, g, deps)
	a.startScheduler(ctx, g, deps)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// startNotifier bridges signal-bus events to operator alert channels when at
// least one sender is configured.
func (a *App) startNotifier(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !deps.Notifier.Enabled() {
		return
	}
	g.Go(func() error { return deps.Notifier.Watch(ctx, deps.SignalBus) })
}

// startScheduler launches the settlement loop and, when configured, the S3
// archiver.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sched := settlement.NewScheduler(
		deps.Store,
		deps.Oracle,
		deps.Gateway,
		deps.SignalBus,
		settlement.Config{
			TickInterval:      a.cfg.Settlement.TickInterval.Duration,
			JobTimeout:        a.cfg.Settlement.JobTimeout.Duration,
			PriceTolerance:    a.cfg.Settlement.PriceTolerance,
			MaxConcurrentJobs: a.cfg.Settlement.MaxConcurrentJobs,
		},
		a.logger,
	)
	g.Go(func() error { return sched.Run(ctx) })

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}
}

// startServer launches the WebSocket hub and the HTTP server, and shuts the
// server down when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	predictions := service.NewPredictionService(
		deps.Store,
		deps.Oracle,
		deps.Gateway,
		deps.SignalBus,
		a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:      handler.NewHealthHandler(a.logger),
			Status:      handler.NewStatusHandler(a.cfg.Mode, deps.Gateway, time.Now().UTC()),
			Predictions: handler.NewPredictionHandler(predictions, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}
