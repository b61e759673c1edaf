package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jensholdgaard/gachabot/internal/bot"
	"github.com/jensholdgaard/gachabot/internal/bot/commands"
	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/eventflags"
	"github.com/jensholdgaard/gachabot/internal/game"
	"github.com/jensholdgaard/gachabot/internal/grade"
	"github.com/jensholdgaard/gachabot/internal/health"
	"github.com/jensholdgaard/gachabot/internal/leader"
	"github.com/jensholdgaard/gachabot/internal/store"
	"github.com/jensholdgaard/gachabot/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/gachabot/internal/store/memory"
	_ "github.com/jensholdgaard/gachabot/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	table, err := grade.Load(cfg.Economy.GradeTable)
	if err != nil {
		return fmt.Errorf("loading grade table: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()
	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	checks := []health.Checker{
		{Name: "database", Check: repos.Ping},
	}

	// Event flags come from Redis when it is configured and from the config
	// file otherwise.
	var (
		flags     eventflags.Source = eventflags.NewStatic(cfg.Economy.StaticFlags)
		admin     commands.FlagAdmin
		refresher *eventflags.Redis
	)
	if cfg.Redis.Addr != "" {
		rdb, dialErr := eventflags.Dial(ctx, cfg.Redis)
		if dialErr != nil {
			return fmt.Errorf("connecting to redis: %w", dialErr)
		}
		defer rdb.Close()
		rf := eventflags.NewRedis(rdb, cfg.Redis.FlagsKey, cfg.Redis.RefreshInterval, logger, tp.TracerProvider)
		if refreshErr := rf.Refresh(ctx); refreshErr != nil {
			logger.WarnContext(ctx, "initial event flag read failed, using defaults", slog.Any("error", refreshErr))
		}
		flags, admin, refresher = rf, rf, rf
		checks = append(checks, health.Ping("redis", rf))
		logger.InfoContext(ctx, "event flags from redis", slog.String("key", cfg.Redis.FlagsKey))
	}

	svc, err := game.NewService(cfg.Economy, game.Deps{
		Table:          table,
		Repos:          repos,
		Flags:          flags,
		Metrics:        tp.Metrics,
		Clock:          clk,
		Logger:         logger,
		TracerProvider: tp.TracerProvider,
	})
	if err != nil {
		return fmt.Errorf("creating game service: %w", err)
	}
	checks = append(checks, health.Backlog("saves", svc.PendingSaves, cfg.Economy.Saver.QueueSize))

	healthHandler := health.NewHandler(clk, checks...)
	mux := http.NewServeMux()
	healthHandler.Register(mux)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// The saver drains until shutdown; Close below flushes what is left.
	saverCtx, stopSaver := context.WithCancel(context.Background())
	defer stopSaver()
	saverDone := make(chan struct{})
	go func() {
		defer close(saverDone)
		svc.Run(saverCtx)
	}()

	if refresher != nil {
		g.Go(func() error {
			refresher.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		logger.InfoContext(gctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", listenErr)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("http server shutdown error", slog.Any("error", shutdownErr))
		}
		return nil
	})

	// Only the leader talks to Discord and sweeps expired listings, so one
	// replica owns the in-memory sessions.
	g.Go(func() error {
		if cfg.LeaderElection.Enabled {
			logger.InfoContext(gctx, "leader election enabled, waiting for leadership...")
		}
		var leadErr error
		err := leader.Lead(gctx, cfg.LeaderElection, logger, func(ctx context.Context) {
			leadErr = lead(ctx, cfg, svc, table, admin, healthHandler, clk, tp, logger)
			if leadErr != nil {
				logger.ErrorContext(ctx, "leader work failed", slog.Any("error", leadErr))
			}
		})
		if err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
		// Without election there is no other replica to take over.
		if !cfg.LeaderElection.Enabled {
			return leadErr
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutting down...")

	stopSaver()
	<-saverDone
	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer closeCancel()
	if closeErr := svc.Close(closeCtx); closeErr != nil {
		logger.Error("flushing player saves failed", slog.Any("error", closeErr))
	}

	logger.Info("shutdown complete")
	return err
}

// lead runs the Discord bot and the listing sweeper until ctx is done.
func lead(ctx context.Context, cfg *config.Config, svc *game.Service, table *grade.Table, admin commands.FlagAdmin,
	hh *health.Handler, clk clock.Clock, tp *telemetry.Provider, logger *slog.Logger) error {
	discordBot, err := bot.New(cfg.Discord, svc, table, admin, clk, logger, tp.TracerProvider)
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}
	if err := discordBot.Start(ctx); err != nil {
		return fmt.Errorf("starting bot: %w", err)
	}

	hh.SetReady(true)
	logger.InfoContext(ctx, "gachabot is running (leader)", slog.String("version", version))

	svc.RunSweeper(ctx, cfg.Economy.Auction.SweepInterval)

	hh.SetReady(false)
	if err := discordBot.Stop(); err != nil {
		logger.Error("bot shutdown error", slog.Any("error", err))
	}
	return nil
}
