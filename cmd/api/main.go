package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderbridge-backend/api/routes"
	"github.com/angelmondragon/orderbridge-backend/internal/broadcast"
	"github.com/angelmondragon/orderbridge-backend/internal/inbox"
	"github.com/angelmondragon/orderbridge-backend/internal/ingest"
	"github.com/angelmondragon/orderbridge-backend/internal/orders"
	"github.com/angelmondragon/orderbridge-backend/internal/outbound"
	"github.com/angelmondragon/orderbridge-backend/pkg/config"
	"github.com/angelmondragon/orderbridge-backend/pkg/db"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
	"github.com/angelmondragon/orderbridge-backend/pkg/metrics"
	"github.com/angelmondragon/orderbridge-backend/pkg/migrate"
	"github.com/angelmondragon/orderbridge-backend/pkg/queue"
)

// The api binary hosts the whole pipeline in one process: HTTP ingress, the
// ingest consumer, the outbound dispatcher, and the in-process change
// broadcaster the SSE stream reads from.
func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	queueRepo := queue.NewRepository(dbClient)
	inboxRepo := inbox.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	broadcaster := broadcast.New(cfg.Worker.SubscriberBufSize)

	inboxService, err := inbox.NewService(inbox.ServiceParams{
		DB:      dbClient,
		Repo:    inboxRepo,
		Queue:   queueRepo,
		Logger:  logg,
		Metrics: pipelineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inbox service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(ordersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	consumer, err := ingest.NewConsumer(ingest.ConsumerParams{
		DB:          dbClient,
		Queue:       queueRepo,
		InboxRepo:   inboxRepo,
		OrdersRepo:  ordersRepo,
		Broadcaster: broadcaster,
		Logger:      logg,
		Metrics:     pipelineMetrics,
		Concurrency: cfg.Worker.Concurrency,
		ReadOptions: queue.ReadOptions{
			Visibility:   time.Duration(cfg.Queue.VisibilitySeconds) * time.Second,
			MaxCount:     cfg.Queue.MaxCount,
			MaxPoll:      time.Duration(cfg.Queue.MaxPollSeconds) * time.Second,
			PollInterval: time.Duration(cfg.Queue.PollIntervalMS) * time.Millisecond,
		},
		RestartBackoff:   cfg.Worker.RestartBackoff,
		TxTimeout:        cfg.Worker.TxTimeout,
		FailedAfterReads: cfg.Worker.FailedAfterReads,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ingest consumer", err)
		os.Exit(1)
	}

	dispatcher, err := outbound.NewDispatcher(outbound.DispatcherParams{
		DB:             dbClient,
		Queue:          queueRepo,
		Logger:         logg,
		Metrics:        pipelineMetrics,
		BaseURL:        cfg.Outbound.BaseURL,
		RatePerSecond:  cfg.Outbound.RatePerSecond,
		Burst:          cfg.Outbound.Burst,
		RequestTimeout: cfg.Outbound.RequestTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbound dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.App.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(logg, dbClient, inboxService, ordersService, broadcaster),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := consumer.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		err := dispatcher.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		broadcaster.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	interrupted := false
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api stopped unexpectedly", err)
		os.Exit(1)
	}
	if ctx.Err() != nil {
		interrupted = true
	}

	logg.Info(ctx, "api shutting down gracefully")
	if interrupted {
		os.Exit(130)
	}
}
