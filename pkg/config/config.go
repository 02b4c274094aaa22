package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Queue        QueueConfig
	Worker       WorkerConfig
	Outbound     OutboundConfig
	Mock         MockConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	// envconfig accepts a variable that is set but empty; an empty DSN is
	// rejected here the same as an unset one.
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		return nil, fmt.Errorf("parsing config: required key DATABASE_URL is empty")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"APP_ENV" default:"dev"`
	Port         string `envconfig:"API_PORT" default:"4000"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"DATABASE_URL" required:"true"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type QueueConfig struct {
	VisibilitySeconds int `envconfig:"QUEUE_VISIBILITY_SECONDS" default:"30"`
	MaxCount          int `envconfig:"QUEUE_MAX_COUNT" default:"2"`
	MaxPollSeconds    int `envconfig:"QUEUE_MAX_POLL_SECONDS" default:"5"`
	PollIntervalMS    int `envconfig:"QUEUE_POLL_INTERVAL_MS" default:"200"`
}

type WorkerConfig struct {
	Concurrency       int           `envconfig:"WORKER_CONCURRENCY" default:"1"`
	RestartBackoff    time.Duration `envconfig:"WORKER_RESTART_BACKOFF" default:"1s"`
	FailedAfterReads  int           `envconfig:"WORKER_FAILED_AFTER_READS" default:"10"`
	TxTimeout         time.Duration `envconfig:"WORKER_TX_TIMEOUT" default:"20s"`
	SubscriberBufSize int           `envconfig:"STREAM_SUBSCRIBER_BUFFER" default:"256"`
}

type OutboundConfig struct {
	BaseURL        string        `envconfig:"UPSTREAM_BASE_URL" default:"http://localhost:4001"`
	RatePerSecond  float64       `envconfig:"OUTBOUND_RATE_PER_SECOND" default:"2"`
	Burst          int           `envconfig:"OUTBOUND_BURST" default:"2"`
	RequestTimeout time.Duration `envconfig:"OUTBOUND_REQUEST_TIMEOUT" default:"15s"`
}

type MockConfig struct {
	Port          string  `envconfig:"MOCK_SHOPIFY_PORT" default:"4001"`
	RatePerSecond float64 `envconfig:"MOCK_SHOPIFY_RATE_PER_SECOND" default:"2"`
	Burst         int     `envconfig:"MOCK_SHOPIFY_BURST" default:"2"`
	FailFirstCall bool    `envconfig:"MOCK_FAIL_FIRST_CALL" default:"false"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AUTO_MIGRATE" default:"false"`
}
