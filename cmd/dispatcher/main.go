package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/orderbridge-backend/internal/outbound"
	"github.com/angelmondragon/orderbridge-backend/pkg/config"
	"github.com/angelmondragon/orderbridge-backend/pkg/db"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
	"github.com/angelmondragon/orderbridge-backend/pkg/metrics"
	"github.com/angelmondragon/orderbridge-backend/pkg/queue"
)

// The dispatcher binary drains shopify_outbound on its own, for deployments
// that isolate upstream traffic from the HTTP surface.
func main() {
	logg := logger.New(logger.Options{ServiceName: "dispatcher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "dispatcher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	dispatcher, err := outbound.NewDispatcher(outbound.DispatcherParams{
		DB:             dbClient,
		Queue:          queue.NewRepository(dbClient),
		Logger:         logg,
		Metrics:        metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
		BaseURL:        cfg.Outbound.BaseURL,
		RatePerSecond:  cfg.Outbound.RatePerSecond,
		Burst:          cfg.Outbound.Burst,
		RequestTimeout: cfg.Outbound.RequestTimeout,
		ReadOptions: queue.ReadOptions{
			Visibility:   time.Duration(cfg.Queue.VisibilitySeconds) * time.Second,
			MaxCount:     cfg.Queue.MaxCount,
			MaxPoll:      time.Duration(cfg.Queue.MaxPollSeconds) * time.Second,
			PollInterval: time.Duration(cfg.Queue.PollIntervalMS) * time.Millisecond,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbound dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"upstream": cfg.Outbound.BaseURL,
	})
	logg.Info(ctx, "starting outbound dispatcher")

	err = dispatcher.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatcher shutting down gracefully")
	if ctx.Err() != nil {
		os.Exit(130)
	}
}
