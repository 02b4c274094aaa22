package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
	"github.com/angelmondragon/orderbridge-backend/pkg/metrics"
	"github.com/angelmondragon/orderbridge-backend/pkg/queue"
)

const (
	defaultVisibility     = 30 * time.Second
	defaultMaxCount       = 2
	defaultMaxPoll        = 5 * time.Second
	defaultPollInterval   = 200 * time.Millisecond
	defaultRestartBackoff = time.Second
	defaultRetryAfter     = time.Second
	defaultRequestTimeout = 15 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type queueRepository interface {
	ReadWithPoll(ctx context.Context, queueName string, opts queue.ReadOptions) ([]models.QueueMessage, error)
	Enqueue(tx *gorm.DB, queueName string, body any, delay time.Duration) error
	Delete(tx *gorm.DB, id int64) error
}

type DispatcherParams struct {
	DB      txRunner
	Queue   queueRepository
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics

	BaseURL        string
	RatePerSecond  float64
	Burst          int
	RequestTimeout time.Duration
	HTTPClient     *http.Client

	ReadOptions    queue.ReadOptions
	RestartBackoff time.Duration
}

// Dispatcher drains shopify_outbound against the upstream admin API under a
// client-side token bucket matched to the documented upstream rate. A 429
// re-enqueues the same payload with the Retry-After delay instead of losing
// it; other upstream failures drop the message since the next real change
// regenerates an outbound.
type Dispatcher struct {
	db      txRunner
	queue   queueRepository
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics

	baseURL string
	limiter *rate.Limiter
	client  *http.Client

	readOpts       queue.ReadOptions
	restartBackoff time.Duration
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue repository is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.BaseURL == "" {
		return nil, errors.New("upstream base url is required")
	}

	ratePerSecond := params.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = 2
	}
	burst := params.Burst
	if burst <= 0 {
		burst = 2
	}

	client := params.HTTPClient
	if client == nil {
		timeout := params.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	readOpts := params.ReadOptions
	if readOpts.Visibility <= 0 {
		readOpts.Visibility = defaultVisibility
	}
	if readOpts.MaxCount <= 0 {
		readOpts.MaxCount = defaultMaxCount
	}
	if readOpts.MaxPoll <= 0 {
		readOpts.MaxPoll = defaultMaxPoll
	}
	if readOpts.PollInterval <= 0 {
		readOpts.PollInterval = defaultPollInterval
	}
	backoff := params.RestartBackoff
	if backoff <= 0 {
		backoff = defaultRestartBackoff
	}

	return &Dispatcher{
		db:             params.DB,
		queue:          params.Queue,
		logg:           params.Logger,
		metrics:        params.Metrics,
		baseURL:        params.BaseURL,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		client:         client,
		readOpts:       readOpts,
		restartBackoff: backoff,
	}, nil
}

// Run blocks until ctx is canceled, draining the outbound queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "outbound dispatcher stopping")
			return ctx.Err()
		default:
		}

		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logg.Error(ctx, "outbound batch failed", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.restartBackoff):
			}
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	claimed, err := d.queue.ReadWithPoll(ctx, queue.ShopifyOutbound, d.readOpts)
	if err != nil {
		return fmt.Errorf("reading outbound queue: %w", err)
	}

	for _, msg := range claimed {
		if err := d.processMessage(ctx, msg); err != nil {
			d.logg.Error(ctx, "outbound message failed", err)
		}
	}
	return nil
}

func (d *Dispatcher) processMessage(ctx context.Context, msg models.QueueMessage) error {
	var payload Message
	if err := json.Unmarshal(msg.Message, &payload); err != nil || payload.OrderID == "" {
		logCtx := d.logg.WithField(ctx, "queue_message_id", msg.ID)
		d.logg.Warn(logCtx, "dropping malformed outbound message")
		d.metrics.IncDispatched("malformed_dropped")
		return d.queue.Delete(nil, msg.ID)
	}

	// A claimed message finishes even after a shutdown signal; the HTTP
	// client timeout still bounds the upstream call.
	ctx = context.WithoutCancel(ctx)

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	logCtx := d.logg.WithOrderID(ctx, payload.OrderID)
	status, retryAfter, err := d.post(ctx, payload)
	if err != nil {
		// Transport failure: leave the claim alone; visibility expiry redelivers.
		return fmt.Errorf("posting order %s upstream: %w", payload.OrderID, err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		d.metrics.IncDispatched("retry_after")
		logCtx = d.logg.WithField(logCtx, "retry_after", retryAfter.String())
		d.logg.Info(logCtx, "upstream throttled; re-enqueueing with delay")
		return d.db.WithTx(ctx, func(tx *gorm.DB) error {
			if err := d.queue.Enqueue(tx, queue.ShopifyOutbound, payload, retryAfter); err != nil {
				return err
			}
			return d.queue.Delete(tx, msg.ID)
		})

	case status >= 200 && status < 300:
		d.metrics.IncDispatched("ok")
		return d.queue.Delete(nil, msg.ID)

	default:
		d.metrics.IncDispatched("dropped")
		logCtx = d.logg.WithField(logCtx, "status", status)
		d.logg.Warn(logCtx, "upstream rejected outbound update; dropping")
		return d.queue.Delete(nil, msg.ID)
	}
}

func (d *Dispatcher) post(ctx context.Context, payload Message) (int, time.Duration, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("marshaling outbound payload: %w", err)
	}

	url := fmt.Sprintf("%s/admin/orders/%s", d.baseURL, payload.OrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	retryAfter := defaultRetryAfter
	if resp.StatusCode == http.StatusTooManyRequests {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
	}
	return resp.StatusCode, retryAfter, nil
}
