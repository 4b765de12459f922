// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/modkit/internal/app"
	"github.com/keshon/modkit/internal/config"
	"github.com/keshon/modkit/internal/discord"
	"github.com/keshon/modkit/internal/logging"
	"github.com/keshon/modkit/internal/status"
	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/internal/telemetry"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/jobmgr"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, dotenvMissing, err := config.Load()
	if err != nil {
		return err
	}

	logger, logFile, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()
	if dotenvMissing {
		logger.Info().Msg("no .env file found, using the process environment")
	}
	logger.Info().Msg("starting discord bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	client := discord.NewClient(session, store, cfg.OwnerIDs)
	bus := events.NewBus()

	reg, err := app.Build(cfg, app.Options{
		Client:      client,
		Bus:         bus,
		Middlewares: []command.Middleware{discord.HistoryMiddleware(store, logger)},
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if err := reg.Load(ctx); err != nil {
		return err
	}

	discord.RegisterReplies(bus, discord.SessionResponder(session), logger)
	bot := discord.NewBot(session, reg.Commands, discord.BotOptions{
		SyncCommands:   cfg.SyncCommands,
		SyncGuildID:    cfg.SyncGuildID,
		GuildBlacklist: cfg.GuildBlacklist,
		Logger:         logger,
	})
	bot.WatchRegistry(bus)

	jobs := jobmgr.NewManager(logger)
	defer jobs.StopAll()

	if err := jobs.Start(ctx, "cooldown-sweeper", func(ctx context.Context) error {
		reg.Commands.RunCooldownSweeper(ctx, time.Minute)
		return nil
	}); err != nil {
		return err
	}
	if err := jobs.Start(ctx, "storage-flush", func(ctx context.Context) error {
		return storage.RunFlusher(ctx, store, time.Minute, logger)
	}); err != nil {
		return err
	}
	if cfg.WatchModules {
		if err := reg.Watch(ctx, jobs); err != nil {
			return err
		}
	}
	if cfg.StatusAddr != "" {
		src := status.Source{
			Commands:   reg.Commands,
			Inhibitors: reg.Inhibitors,
			Ready:      bot.Ready,
			Jobs:       jobs.List,
			Started:    time.Now(),
		}
		if err := jobs.Start(ctx, "status-server", func(ctx context.Context) error {
			return status.RunServer(ctx, cfg.StatusAddr, src, logger)
		}); err != nil {
			return err
		}
	}
	logger.Debug().Str("jobs", jobs.Status()).Msg("background jobs started")

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		cancel()
		if err != nil {
			return err
		}
	}

	logger.Info().Msg("discord bot exited cleanly")
	return nil
}
