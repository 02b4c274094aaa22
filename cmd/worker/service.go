package main

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/orderbridge-backend/internal/broadcast"
	"github.com/angelmondragon/orderbridge-backend/internal/inbox"
	"github.com/angelmondragon/orderbridge-backend/internal/ingest"
	"github.com/angelmondragon/orderbridge-backend/internal/orders"
	"github.com/angelmondragon/orderbridge-backend/pkg/config"
	"github.com/angelmondragon/orderbridge-backend/pkg/db"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
	"github.com/angelmondragon/orderbridge-backend/pkg/metrics"
	"github.com/angelmondragon/orderbridge-backend/pkg/queue"
)

type ServiceParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Metrics *metrics.PipelineMetrics
}

type Service struct {
	logg        *logger.Logger
	consumer    *ingest.Consumer
	broadcaster *broadcast.Broadcaster
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}

	cfg := params.Config
	queueRepo := queue.NewRepository(params.DB)
	broadcaster := broadcast.New(cfg.Worker.SubscriberBufSize)

	consumer, err := ingest.NewConsumer(ingest.ConsumerParams{
		DB:          params.DB,
		Queue:       queueRepo,
		InboxRepo:   inbox.NewRepository(params.DB.DB()),
		OrdersRepo:  orders.NewRepository(params.DB.DB()),
		Broadcaster: broadcaster,
		Logger:      params.Logger,
		Metrics:     params.Metrics,
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
		return nil, err
	}

	return &Service{
		logg:        params.Logger,
		consumer:    consumer,
		broadcaster: broadcaster,
	}, nil
}

// Run blocks until ctx is canceled, then finishes in-flight messages and
// closes the broadcaster.
func (s *Service) Run(ctx context.Context) error {
	defer s.broadcaster.Close()
	return s.consumer.Run(ctx)
}
