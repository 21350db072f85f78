package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantonic/autotrader/internal/server"
	"github.com/quantonic/autotrader/internal/server/handler"
)

// TradeMode runs the full pipeline against the live bridge: the trade
// loop, the trailing loop, the journal archiver, and the HTTP server.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	return a.runPipeline(ctx, deps)
}

// PaperMode runs the same pipeline against the in-memory paper session.
// When a bridge is configured it supplies live market data; fills never
// leave the process.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode, orders stay in-memory")
	return a.runPipeline(ctx, deps)
}

// MonitorMode evaluates and journals every decision but never submits
// orders or moves stops. The HTTP server is always started so the
// decisions are inspectable.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode, submission disabled")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.TradeLoop.Run(ctx)
	})
	// Trailing still runs: it only tightens protection on positions that
	// already exist, it never opens exposure.
	if deps.TrailLoop != nil {
		g.Go(func() error {
			return deps.TrailLoop.Run(ctx)
		})
	}
	if deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	}
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// ServerMode serves the API without running any loops. Decisions are
// still available on demand through GET /api/decide/{symbol}.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode, loops disabled")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// runPipeline starts the trade loop plus every enabled subsystem and
// blocks until the first fatal error or context cancellation.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.TradeLoop.Run(ctx)
	})

	if deps.TrailLoop != nil {
		g.Go(func() error {
			return deps.TrailLoop.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startArchiver adds a daily goroutine that exports journal rows older
// than the retention window to blob storage and prunes them.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	retention := a.cfg.S3.RetentionDays
	if retention <= 0 {
		retention = 90
	}

	g.Go(func() error {
		runOnce := func() {
			cutoff := time.Now().UTC().AddDate(0, 0, -retention)
			n, err := deps.Archiver.ArchiveAndPrune(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "journal archive failed",
					slog.Time("cutoff", cutoff),
					slog.String("error", err.Error()),
				)
				return
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "journal archived",
					slog.Int64("entries", n),
					slog.Time("cutoff", cutoff),
				)
			}
		}

		runOnce()
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				runOnce()
			}
		}
	})
}

// startHTTPServer adds the API server to the errgroup. Handlers whose
// backing subsystem is disabled are left nil, so their routes are not
// registered.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(deps.TradeLoop, deps.Session, a.logger),
		Positions: handler.NewPositionHandler(deps.Session, a.logger),
		Decide:    handler.NewDecideHandler(deps.TradeLoop, a.logger),
	}
	if deps.TrailLoop != nil {
		handlers.Trail = handler.NewTrailHandler(deps.TrailLoop, a.logger)
	}
	if deps.Journal != nil {
		handlers.Journal = handler.NewJournalHandler(deps.Journal, a.logger)
	}
	if deps.Archives != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.Archives, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
