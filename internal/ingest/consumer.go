package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderbridge-backend/internal/broadcast"
	"github.com/angelmondragon/orderbridge-backend/internal/inbox"
	"github.com/angelmondragon/orderbridge-backend/internal/orders"
	"github.com/angelmondragon/orderbridge-backend/internal/outbound"
	dbpkg "github.com/angelmondragon/orderbridge-backend/pkg/db"
	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
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
	defaultTxTimeout      = 20 * time.Second
	defaultFailedReads    = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type queueRepository interface {
	ReadWithPoll(ctx context.Context, queueName string, opts queue.ReadOptions) ([]models.QueueMessage, error)
	Enqueue(tx *gorm.DB, queueName string, body any, delay time.Duration) error
	Delete(tx *gorm.DB, id int64) error
}

type publisher interface {
	Publish(event broadcast.Event)
}

// locker serializes writers to one order inside the transaction.
type locker func(tx *gorm.DB, orderID string) error

type ConsumerParams struct {
	DB          txRunner
	Queue       queueRepository
	InboxRepo   inbox.Repository
	OrdersRepo  orders.Repository
	Broadcaster publisher
	Logger      *logger.Logger
	Metrics     *metrics.PipelineMetrics

	// Lock overrides the per-order serializer; tests inject a no-op.
	Lock locker

	Concurrency      int
	ReadOptions      queue.ReadOptions
	RestartBackoff   time.Duration
	TxTimeout        time.Duration
	FailedAfterReads int
}

// Consumer drains ingest_events and applies the state-transition rules to
// the order aggregate. Each message is processed in one transaction that
// also deletes the queue message, so a failure rolls everything back and the
// message is redelivered after its visibility window.
type Consumer struct {
	db          txRunner
	queue       queueRepository
	inboxRepo   inbox.Repository
	ordersRepo  orders.Repository
	broadcaster publisher
	logg        *logger.Logger
	metrics     *metrics.PipelineMetrics
	lock        locker

	concurrency      int
	readOpts         queue.ReadOptions
	restartBackoff   time.Duration
	txTimeout        time.Duration
	failedAfterReads int
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue repository is required")
	}
	if params.InboxRepo == nil {
		return nil, errors.New("inbox repository is required")
	}
	if params.OrdersRepo == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.Broadcaster == nil {
		return nil, errors.New("broadcaster is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	lock := params.Lock
	if lock == nil {
		lock = dbpkg.AdvisoryXactLock
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

	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	backoff := params.RestartBackoff
	if backoff <= 0 {
		backoff = defaultRestartBackoff
	}
	txTimeout := params.TxTimeout
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	failedReads := params.FailedAfterReads
	if failedReads <= 0 {
		failedReads = defaultFailedReads
	}

	return &Consumer{
		db:               params.DB,
		queue:            params.Queue,
		inboxRepo:        params.InboxRepo,
		ordersRepo:       params.OrdersRepo,
		broadcaster:      params.Broadcaster,
		logg:             params.Logger,
		metrics:          params.Metrics,
		lock:             lock,
		concurrency:      concurrency,
		readOpts:         readOpts,
		restartBackoff:   backoff,
		txTimeout:        txTimeout,
		failedAfterReads: failedReads,
	}, nil
}

// Run blocks until ctx is canceled, supervising the configured number of
// polling loops. A failed batch is logged and the loop restarts after a
// short backoff; it never halts the consumer.
func (c *Consumer) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.concurrency; i++ {
		loop := i
		group.Go(func() error {
			loopCtx := c.logg.WithField(groupCtx, "loop", loop)
			return c.runLoop(loopCtx)
		})
	}
	return group.Wait()
}

func (c *Consumer) runLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.logg.Info(ctx, "ingest consumer loop stopping")
			return ctx.Err()
		default:
		}

		if err := c.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logg.Error(ctx, "ingest batch failed", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.restartBackoff):
			}
		}
	}
}

func (c *Consumer) processBatch(ctx context.Context) error {
	claimed, err := c.queue.ReadWithPoll(ctx, queue.IngestEvents, c.readOpts)
	if err != nil {
		return fmt.Errorf("reading ingest queue: %w", err)
	}
	c.metrics.ObserveClaimBatch(len(claimed))

	for _, msg := range claimed {
		if err := c.processMessage(ctx, msg); err != nil {
			// Rolled back; the message redelivers after its visibility window.
			c.logg.Error(ctx, "ingest message failed", err)
		}
	}
	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg models.QueueMessage) error {
	var event inbox.QueueEventMessage
	if err := json.Unmarshal(msg.Message, &event); err != nil || event.OrderID == "" || event.DedupeKey == "" {
		// Malformed messages cannot be produced by the ingress path; dropping
		// beats blocking the queue on indefinite redelivery.
		logCtx := c.logg.WithField(ctx, "queue_message_id", msg.ID)
		c.logg.Warn(logCtx, "dropping malformed ingest message")
		c.metrics.IncProcessed("malformed_dropped")
		return c.queue.Delete(nil, msg.ID)
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"order_id":   event.OrderID,
		"dedupe_key": event.DedupeKey,
		"event_type": event.EventType,
		"read_count": msg.ReadCount,
	})

	if msg.ReadCount > c.failedAfterReads {
		return c.quarantine(logCtx, msg, event)
	}

	// The transaction is not tied to the loop's cancellation, so a shutdown
	// signal lets the in-flight message finish; the timeout still bounds it.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.txTimeout)
	defer cancel()

	var recorded *broadcast.Event
	result := enums.InboxStatusProcessed
	err := c.db.WithTx(txCtx, func(tx *gorm.DB) error {
		if err := c.lock(tx, event.OrderID); err != nil {
			return fmt.Errorf("acquiring order lock: %w", err)
		}

		inboxRepo := c.inboxRepo.WithTx(tx)
		ordersRepo := c.ordersRepo.WithTx(tx)

		inboxRow, err := inboxRepo.FindByDedupeKey(txCtx, event.DedupeKey)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("loading inbox row: %w", err)
			}
			// The ingress path commits the row before the enqueue; a missing
			// row is an operational anomaly, not a reason to lose the event.
			c.logg.Warn(logCtx, "inbox row missing for queued event")
			inboxRow = nil
		}

		order, err := ordersRepo.FindByOrderID(txCtx, event.OrderID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("loading order: %w", err)
			}
			order = nil
		}

		if order == nil && event.EventType != enums.EventTypeShopifyCreated {
			order, err = c.createPartialOrder(txCtx, ordersRepo, event)
			if err != nil {
				return fmt.Errorf("creating partial order: %w", err)
			}
			c.logg.Info(logCtx, "created partial order ahead of merchant create")
		}

		now := time.Now().UTC()

		if order != nil && order.LastEventTs != nil && event.EventTs.UTC().Before(order.LastEventTs.UTC()) {
			if inboxRow != nil {
				if err := inboxRepo.MarkStatus(txCtx, inboxRow.ID, enums.InboxStatusIgnoredStale, now); err != nil {
					return fmt.Errorf("marking inbox stale: %w", err)
				}
			}
			result = enums.InboxStatusIgnoredStale
			c.logg.Info(logCtx, "stale event ignored")
			return c.queue.Delete(tx, msg.ID)
		}

		switch event.EventType {
		case enums.EventTypeShopifyCreated, enums.EventTypeShopifyUpdated:
			recorded, err = c.applyMerchantEvent(txCtx, tx, ordersRepo, order, event, now)
		case enums.EventTypeCourierStatusUpdate:
			recorded, err = c.applyCourierEvent(txCtx, ordersRepo, order, event, now)
		default:
			c.logg.Warn(logCtx, "unknown event type; advancing timestamp only")
			err = ordersRepo.UpdateFields(txCtx, event.OrderID, map[string]any{
				"last_event_ts": event.EventTs.UTC(),
			})
		}
		if err != nil {
			return err
		}

		if inboxRow != nil {
			if err := inboxRepo.MarkStatus(txCtx, inboxRow.ID, enums.InboxStatusProcessed, now); err != nil {
				return fmt.Errorf("marking inbox processed: %w", err)
			}
		}

		return c.queue.Delete(tx, msg.ID)
	})
	if err != nil {
		return err
	}

	c.metrics.IncProcessed(string(result))
	if recorded != nil {
		c.broadcaster.Publish(*recorded)
	}
	return nil
}

// quarantine dead-letters a message that keeps failing: the inbox row is
// marked FAILED and the message leaves the queue for good.
func (c *Consumer) quarantine(ctx context.Context, msg models.QueueMessage, event inbox.QueueEventMessage) error {
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		inboxRepo := c.inboxRepo.WithTx(tx)
		row, err := inboxRepo.FindByDedupeKey(ctx, event.DedupeKey)
		if err == nil {
			if err := inboxRepo.MarkStatus(ctx, row.ID, enums.InboxStatusFailed, time.Now().UTC()); err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return c.queue.Delete(tx, msg.ID)
	})
	if err != nil {
		return fmt.Errorf("quarantining poison message: %w", err)
	}
	c.metrics.IncProcessed(string(enums.InboxStatusFailed))
	c.logg.Warn(ctx, "poison message quarantined")
	return nil
}

func (c *Consumer) createPartialOrder(ctx context.Context, repo orders.Repository, event inbox.QueueEventMessage) (*models.Order, error) {
	customerID := "unknown"
	if payload, err := parseShopifyPayload(event.Payload); err == nil && payload.Customer != nil && payload.Customer.ID != "" {
		customerID = payload.Customer.ID
	}
	epoch := time.Unix(0, 0).UTC()
	return repo.Create(ctx, &models.Order{
		OrderID:     event.OrderID,
		CustomerID:  customerID,
		Status:      enums.OrderStatusPendingPartial,
		LastEventTs: &epoch,
	})
}

func (c *Consumer) applyMerchantEvent(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, event inbox.QueueEventMessage, now time.Time) (*broadcast.Event, error) {
	payload, err := parseShopifyPayload(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("parsing merchant payload: %w", err)
	}

	eventTs := event.EventTs.UTC()
	fields := map[string]any{"last_event_ts": eventTs}
	changed := map[string]any{}

	// The six address components always overwrite, including to null when
	// absent from the payload (intentional last-writer-wins).
	var addr shippingAddressPayload
	if payload.ShippingAddress != nil {
		addr = *payload.ShippingAddress
	}
	applyAddressField(fields, changed, "address1", addr.Address1)
	applyAddressField(fields, changed, "address2", addr.Address2)
	applyAddressField(fields, changed, "city", addr.City)
	applyAddressField(fields, changed, "province", addr.Province)
	applyAddressField(fields, changed, "zip", addr.Zip)
	applyAddressField(fields, changed, "country", addr.Country)

	if payload.ShippingFeeCents != nil {
		fields["shipping_fee_cents"] = *payload.ShippingFeeCents
		changed["shippingFeeCents"] = *payload.ShippingFeeCents
	}
	if payload.FinancialStatus != nil {
		fields["status"] = *payload.FinancialStatus
		changed["status"] = *payload.FinancialStatus
	}
	if payload.TotalAmount != nil {
		fields["total_amount"] = *payload.TotalAmount
		changed["totalAmount"] = *payload.TotalAmount
	}
	if payload.Customer != nil && payload.Customer.ID != "" {
		fields["customer_id"] = payload.Customer.ID
	}

	if order == nil {
		// First-seen create for this order id.
		if _, err := repo.Create(ctx, &models.Order{OrderID: event.OrderID}); err != nil {
			return nil, fmt.Errorf("creating order: %w", err)
		}
	}
	if err := repo.UpdateFields(ctx, event.OrderID, fields); err != nil {
		return nil, fmt.Errorf("updating order: %w", err)
	}

	snapshot, err := repo.FindByOrderID(ctx, event.OrderID)
	if err != nil {
		return nil, fmt.Errorf("reloading order snapshot: %w", err)
	}

	outboundMsg := outbound.Message{
		OrderID:       event.OrderID,
		ChangedFields: changed,
		Snapshot:      orders.NewOrderResponse(snapshot),
	}
	if err := c.queue.Enqueue(tx, queue.ShopifyOutbound, outboundMsg, 0); err != nil {
		return nil, fmt.Errorf("enqueueing outbound message: %w", err)
	}

	summary := "Order Updated"
	if event.EventType == enums.EventTypeShopifyCreated {
		summary = "Order Created"
	}
	return &broadcast.Event{
		OrderID:       event.OrderID,
		ServerTs:      now,
		ChangedFields: changed,
		Summary:       summary,
	}, nil
}

func (c *Consumer) applyCourierEvent(ctx context.Context, repo orders.Repository, order *models.Order, event inbox.QueueEventMessage, now time.Time) (*broadcast.Event, error) {
	payload, err := parseCourierPayload(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("parsing courier payload: %w", err)
	}

	status := ""
	if payload.Status != nil {
		status = *payload.Status
	}

	if payload.TrackingNumber != nil && *payload.TrackingNumber != "" {
		// Upsert-by-order-id: the schema carries no unique constraint on
		// shipments.order_id, so lookup-then-mutate runs under the per-order
		// lock instead.
		shipment, err := repo.FindShipmentByOrderID(ctx, event.OrderID)
		switch {
		case err == nil:
			shipment.CourierStatus = status
			shipment.TrackingNumber = *payload.TrackingNumber
			if err := repo.UpdateShipment(ctx, shipment); err != nil {
				return nil, fmt.Errorf("updating shipment: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			_, err := repo.CreateShipment(ctx, &models.Shipment{
				OrderID:        event.OrderID,
				CourierStatus:  status,
				TrackingNumber: *payload.TrackingNumber,
			})
			if err != nil {
				return nil, fmt.Errorf("creating shipment: %w", err)
			}
		default:
			return nil, fmt.Errorf("loading shipment: %w", err)
		}
	}

	err = repo.UpdateFields(ctx, event.OrderID, map[string]any{
		"last_event_ts": event.EventTs.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("advancing order timestamp: %w", err)
	}

	return &broadcast.Event{
		OrderID:       event.OrderID,
		ServerTs:      now,
		ChangedFields: map[string]any{"courierStatus": status},
		Summary:       fmt.Sprintf("Shipment Update: %s", status),
	}, nil
}

func applyAddressField(fields, changed map[string]any, column string, value *string) {
	if value != nil {
		fields[column] = *value
		changed[column] = *value
		return
	}
	fields[column] = nil
	changed[column] = nil
}
