package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedmux/feedgate/internal/broadcast"
	"github.com/feedmux/feedgate/internal/config"
	"github.com/feedmux/feedgate/internal/database"
	"github.com/feedmux/feedgate/internal/history"
	"github.com/feedmux/feedgate/internal/model"
	"github.com/feedmux/feedgate/internal/server"
	"github.com/feedmux/feedgate/internal/snapcache"
	"github.com/feedmux/feedgate/internal/subscription"
	"github.com/feedmux/feedgate/internal/tenant"
	"github.com/feedmux/feedgate/internal/upstream"
	"github.com/feedmux/feedgate/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/feedgate.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedgate",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Tenant registry from config seeds
	seeds := make([]model.Tenant, 0, len(cfg.Tenants))
	for _, s := range cfg.Tenants {
		seeds = append(seeds, model.Tenant{
			ID:     s.ID,
			Name:   s.Name,
			Status: model.TenantStatus(s.Status),
		})
	}
	tenants := tenant.NewRegistry(seeds)
	logger.Info("tenant registry seeded", "tenants", len(seeds))

	// Upstream venue client
	venue := upstream.NewClient(
		cfg.Upstream.BaseURL,
		cfg.Upstream.APIKey,
		upstream.WithLogger(logger),
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithRetries(cfg.Upstream.MaxRetries, cfg.Upstream.RetryBackoff),
	)

	logger.Info("probing upstream venue")
	status, err := venue.GetStatus(ctx)
	if err != nil {
		// Polling loops retry on their own cadence, so a failed probe is
		// not fatal.
		logger.Warn("upstream status probe failed", "error", err)
	} else {
		logger.Info("upstream venue reachable",
			"connected", status.Connected,
			"trading_active", status.TradingActive,
			"server", status.Server,
		)
	}

	// Core components
	cache := snapcache.New()
	bcast := broadcast.New(cfg.Server.ListenerQueue, logger)

	mgr := subscription.NewManager(subscription.Config{
		TickCadence:      cfg.Polling.TickCadence,
		OrderBookCadence: cfg.Polling.OrderBookCadence,
		PositionCadence:  cfg.Polling.PositionCadence,
		FailureBackoff:   cfg.Polling.FailureBackoff,
		TickTTL:          cfg.Polling.TickTTL,
	}, venue, tenants, cache, bcast, logger)

	// Optional history recorder
	var recorder *history.Recorder
	if cfg.History.Enabled {
		logger.Info("connecting to history database",
			"host", cfg.History.Postgres.Host,
			"database", cfg.History.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.History.Postgres)
		if err != nil {
			logger.Error("failed to connect to history database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		recorder = history.NewRecorder(history.Config{
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
			BufferSize:    cfg.History.BufferSize,
		}, pool, logger)
		mgr.SetUpdateSink(recorder)

		if err := recorder.Start(ctx); err != nil {
			logger.Error("failed to start history recorder", "error", err)
			os.Exit(1)
		}
	}

	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start subscription manager", "error", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		ListenerQueue: cfg.Server.ListenerQueue,
	}, mgr, tenants, venue, recorder, logger)

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn("server stop failed", "error", err)
	}
	if err := mgr.Stop(stopCtx); err != nil {
		logger.Warn("manager stop failed", "error", err)
	}
	bcast.Close()
	if recorder != nil {
		if err := recorder.Stop(stopCtx); err != nil {
			logger.Warn("recorder stop failed", "error", err)
		}
	}

	logger.Info("feedgate stopped")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
