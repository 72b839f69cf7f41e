package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds how long in-flight HTTP requests may drain.
const shutdownTimeout = 5 * time.Second

// ScanMode runs the scan loop on the configured interval. The HTTP API is
// started alongside when server.enabled is set.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode",
		slog.Duration("interval", a.cfg.Scanner.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startScanLoop(ctx, g, deps)
	if deps.Server != nil {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// OnceMode runs a single scan cycle and returns its error.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting single scan")

	res, err := deps.Scanner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("app: scan cycle: %w", err)
	}
	a.logger.InfoContext(ctx, "scan finished",
		slog.Int("quotes", res.QuotesCount),
		slog.Int("opportunities", len(res.Opportunities)),
		slog.Int("accepted", res.Accepted()),
		slog.String("report", deps.Reports.Path()),
	)
	return nil
}

// ServerMode serves the HTTP API only. Opportunities come from the report
// file and history stores written by a scanner running elsewhere; WebSocket
// clients are fed from the Redis signal channel when Redis is enabled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	if deps.SignalBus == nil {
		a.logger.WarnContext(ctx, "redis disabled, websocket clients will only receive status frames")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the scan loop and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScanLoop(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

func (a *App) startScanLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Scanner.Interval.Duration
	g.Go(func() error {
		return deps.Scanner.Run(ctx, interval)
	})
}

// startHTTPServer runs the WebSocket hub and the API server until ctx is
// cancelled, then drains the server.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Hub != nil {
		g.Go(func() error {
			if err := deps.Hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: ws hub: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return deps.Server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.Server.Shutdown(shutCtx)
	})
}
