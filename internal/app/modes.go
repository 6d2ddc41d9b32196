package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fxbot/internal/engine"
	"github.com/alanyoungcy/fxbot/internal/notify"
	"github.com/alanyoungcy/fxbot/internal/report"
	"github.com/alanyoungcy/fxbot/internal/server"
	"github.com/alanyoungcy/fxbot/internal/server/handler"
	"github.com/alanyoungcy/fxbot/internal/server/ws"
)

// drainTimeout bounds how long shutdown waits for in-flight executions.
const drainTimeout = 30 * time.Second

// TradeMode runs the engine against the configured gateway (the bridge in
// live mode, the simulator in paper mode) together with the operator API,
// notifications, the Telegram bot and the daily archiver.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode", slog.String("mode", a.cfg.Mode))
	return a.run(ctx, deps, a.cfg.Engine.AutoStart)
}

// MonitorMode serves status, news and reports without trading. The engine
// stays stopped and the operator cannot start it.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.run(ctx, deps, false)
}

func (a *App) run(ctx context.Context, deps *Dependencies, autoStart bool) error {
	eng, err := BuildEngine(a.cfg, deps, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	var logs engine.LogSource
	if a.ring != nil {
		logs = a.ring
	}
	op := newOperator(eng, a.cfg.Mode, logs)
	deps.Checks["gateway"] = func(ctx context.Context) error {
		_, err := eng.Gateway.GetAccount(ctx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Notifier.Run(gctx)
	})

	g.Go(func() error {
		return eng.Runner.Run(gctx)
	})

	if autoStart {
		if err := op.Start(gctx); err != nil {
			a.logger.ErrorContext(ctx, "engine auto-start failed, waiting for operator",
				slog.String("error", err.Error()),
			)
		}
	}

	if deps.Telegram != nil && a.cfg.Notify.TelegramCommands {
		bot := notify.NewTelegramBot(deps.Telegram, a.logger)
		op.registerCommands(bot)
		g.Go(func() error {
			return bot.Run(gctx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunDaily(gctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, eng, op)
	}

	err = g.Wait()
	eng.Runner.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if werr := eng.Executor.Wait(drainCtx); werr != nil {
		a.logger.Warn("in-flight executions did not finish before shutdown",
			slog.Int("pending", eng.Executor.Reservations().Len()),
		)
	}

	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.logger.Info("all components stopped cleanly")
	return nil
}

// startHTTPServer builds the websocket hub and the operator API and adds both
// to the group.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *Engine, op *operator) {
	hub := ws.NewHub(deps.Bus, deps.Replay, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	h := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks),
		Engine:  handler.NewEngineHandler(op, a.logger),
		News:    handler.NewNewsHandler(eng.News),
		Report:  handler.NewReportHandler(report.NewService(eng.Gateway), a.logger),
		Journal: handler.NewJournalHandler(deps.Journal, a.logger),
	}
	if deps.BlobReader != nil {
		h.Charts = handler.NewChartHandler(deps.BlobReader, a.logger)
	}

	srv := server.New(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		ManualTradeLimit:  a.cfg.Server.ManualTradeLimit,
		ManualTradeWindow: a.cfg.Server.ManualTradeWindow.Duration,
	}, h, hub, deps.Limiter, a.logger)
	g.Go(func() error {
		return srv.Run(ctx)
	})
}
