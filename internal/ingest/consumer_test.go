package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderbridge-backend/internal/broadcast"
	"github.com/angelmondragon/orderbridge-backend/internal/inbox"
	"github.com/angelmondragon/orderbridge-backend/internal/orders"
	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
	"github.com/angelmondragon/orderbridge-backend/pkg/pagination"
	"github.com/angelmondragon/orderbridge-backend/pkg/queue"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubQueueRepo struct {
	readResults [][]models.QueueMessage
	enqueued    []struct {
		Queue string
		Body  any
		Delay time.Duration
	}
	deleted []int64
}

func (s *stubQueueRepo) ReadWithPoll(ctx context.Context, queueName string, opts queue.ReadOptions) ([]models.QueueMessage, error) {
	if len(s.readResults) == 0 {
		return nil, nil
	}
	next := s.readResults[0]
	s.readResults = s.readResults[1:]
	return next, nil
}

func (s *stubQueueRepo) Enqueue(tx *gorm.DB, queueName string, body any, delay time.Duration) error {
	s.enqueued = append(s.enqueued, struct {
		Queue string
		Body  any
		Delay time.Duration
	}{queueName, body, delay})
	return nil
}

func (s *stubQueueRepo) Delete(tx *gorm.DB, id int64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type stubInboxRepo struct {
	rows map[string]*models.EventInbox
}

func (s *stubInboxRepo) WithTx(tx *gorm.DB) inbox.Repository { return s }

func (s *stubInboxRepo) Insert(ctx context.Context, row *models.EventInbox) error {
	s.rows[row.DedupeKey] = row
	return nil
}

func (s *stubInboxRepo) FindByDedupeKey(ctx context.Context, dedupeKey string) (*models.EventInbox, error) {
	if row, ok := s.rows[dedupeKey]; ok {
		return row, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubInboxRepo) MarkStatus(ctx context.Context, id uuid.UUID, status enums.InboxStatus, processedAt time.Time) error {
	for _, row := range s.rows {
		if row.ID == id {
			row.Status = status
			row.ProcessedAt = &processedAt
		}
	}
	return nil
}

func (s *stubInboxRepo) CountByStatus(ctx context.Context, status enums.InboxStatus) (int64, error) {
	var count int64
	for _, row := range s.rows {
		if row.Status == status {
			count++
		}
	}
	return count, nil
}

type memOrdersRepo struct {
	orders    map[string]*models.Order
	shipments map[string]*models.Shipment
}

func newMemOrdersRepo() *memOrdersRepo {
	return &memOrdersRepo{
		orders:    make(map[string]*models.Order),
		shipments: make(map[string]*models.Shipment),
	}
}

func (m *memOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return m }

func (m *memOrdersRepo) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	if order, ok := m.orders[orderID]; ok {
		copied := *order
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.UpdatedAt = time.Now()
	m.orders[order.OrderID] = order
	return order, nil
}

func (m *memOrdersRepo) UpdateFields(ctx context.Context, orderID string, fields map[string]any) error {
	order, ok := m.orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range fields {
		switch column {
		case "last_event_ts":
			ts := value.(time.Time)
			order.LastEventTs = &ts
		case "customer_id":
			order.CustomerID = value.(string)
		case "status":
			order.Status = value.(string)
		case "total_amount":
			order.TotalAmount = value.(int64)
		case "shipping_fee_cents":
			order.ShippingFeeCents = value.(int64)
		case "address1":
			order.Address1 = toStringPtr(value)
		case "address2":
			order.Address2 = toStringPtr(value)
		case "city":
			order.City = toStringPtr(value)
		case "province":
			order.Province = toStringPtr(value)
		case "zip":
			order.Zip = toStringPtr(value)
		case "country":
			order.Country = toStringPtr(value)
		}
	}
	order.UpdatedAt = time.Now()
	return nil
}

func toStringPtr(value any) *string {
	if value == nil {
		return nil
	}
	s := value.(string)
	return &s
}

func (m *memOrdersRepo) FindShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error) {
	if shipment, ok := m.shipments[orderID]; ok {
		return shipment, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memOrdersRepo) CreateShipment(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error) {
	if shipment.ID == uuid.Nil {
		shipment.ID = uuid.New()
	}
	m.shipments[shipment.OrderID] = shipment
	return shipment, nil
}

func (m *memOrdersRepo) UpdateShipment(ctx context.Context, shipment *models.Shipment) error {
	m.shipments[shipment.OrderID] = shipment
	return nil
}

func (m *memOrdersRepo) FindWithShipments(ctx context.Context, orderID string) (*models.Order, error) {
	return m.FindByOrderID(ctx, orderID)
}

func (m *memOrdersRepo) ListAfterCursor(ctx context.Context, params pagination.Params) ([]models.Order, error) {
	return nil, nil
}

type capturePublisher struct {
	events []broadcast.Event
}

func (c *capturePublisher) Publish(event broadcast.Event) {
	c.events = append(c.events, event)
}

type consumerFixture struct {
	consumer  *Consumer
	queue     *stubQueueRepo
	inboxRepo *stubInboxRepo
	orders    *memOrdersRepo
	published *capturePublisher
}

func newConsumerFixture(t *testing.T) *consumerFixture {
	t.Helper()

	queueRepo := &stubQueueRepo{}
	inboxRepo := &stubInboxRepo{rows: make(map[string]*models.EventInbox)}
	ordersRepo := newMemOrdersRepo()
	published := &capturePublisher{}

	consumer, err := NewConsumer(ConsumerParams{
		DB:          stubTxRunner{},
		Queue:       queueRepo,
		InboxRepo:   inboxRepo,
		OrdersRepo:  ordersRepo,
		Broadcaster: published,
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		Lock:        func(tx *gorm.DB, orderID string) error { return nil },
	})
	require.NoError(t, err)

	return &consumerFixture{
		consumer:  consumer,
		queue:     queueRepo,
		inboxRepo: inboxRepo,
		orders:    ordersRepo,
		published: published,
	}
}

func (f *consumerFixture) seedInbox(t *testing.T, dedupeKey string) *models.EventInbox {
	t.Helper()
	row := &models.EventInbox{
		ID:        uuid.New(),
		DedupeKey: dedupeKey,
		Status:    enums.InboxStatusReceived,
	}
	f.inboxRepo.rows[dedupeKey] = row
	return row
}

func queueMessage(t *testing.T, id int64, readCount int, event inbox.QueueEventMessage) models.QueueMessage {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return models.QueueMessage{ID: id, QueueName: queue.IngestEvents, Message: body, ReadCount: readCount}
}

func TestProcessMerchantCreate(t *testing.T) {
	f := newConsumerFixture(t)
	f.seedInbox(t, "shopify:w1")

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := json.RawMessage(`{"customer":{"id":"c1"},"shipping_address":{"address1":"A","city":"X","province":"NY","zip":"10001","country":"US"},"financial_status":"paid"}`)
	msg := queueMessage(t, 1, 1, inbox.QueueEventMessage{
		OrderID:   "o1",
		DedupeKey: "shopify:w1",
		Source:    enums.EventSourceShopify,
		EventType: enums.EventTypeShopifyCreated,
		EventTs:   ts,
		Payload:   payload,
	})

	require.NoError(t, f.consumer.processMessage(context.Background(), msg))

	order := f.orders.orders["o1"]
	require.NotNil(t, order)
	require.Equal(t, "c1", order.CustomerID)
	require.Equal(t, "paid", order.Status)
	require.NotNil(t, order.City)
	require.Equal(t, "X", *order.City)
	require.Equal(t, ts, order.LastEventTs.UTC())

	require.Equal(t, enums.InboxStatusProcessed, f.inboxRepo.rows["shopify:w1"].Status)
	require.Equal(t, []int64{1}, f.queue.deleted)

	require.Len(t, f.queue.enqueued, 1)
	require.Equal(t, queue.ShopifyOutbound, f.queue.enqueued[0].Queue)

	require.Len(t, f.published.events, 1)
	require.Equal(t, "Order Created", f.published.events[0].Summary)
}

func TestProcessCourierBeforeCreateMakesPartialOrder(t *testing.T) {
	f := newConsumerFixture(t)
	f.seedInbox(t, "courier-key")

	ts := time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC)
	msg := queueMessage(t, 2, 1, inbox.QueueEventMessage{
		OrderID:   "o1",
		DedupeKey: "courier-key",
		Source:    enums.EventSourceCourier,
		EventType: enums.EventTypeCourierStatusUpdate,
		EventTs:   ts,
		Payload:   json.RawMessage(`{"trackingNumber":"T1","status":"SHIPPED"}`),
	})

	require.NoError(t, f.consumer.processMessage(context.Background(), msg))

	order := f.orders.orders["o1"]
	require.NotNil(t, order)
	require.Equal(t, enums.OrderStatusPendingPartial, order.Status)
	require.Equal(t, "unknown", order.CustomerID)
	require.Equal(t, ts, order.LastEventTs.UTC())

	shipment := f.orders.shipments["o1"]
	require.NotNil(t, shipment)
	require.Equal(t, "T1", shipment.TrackingNumber)
	require.Equal(t, "SHIPPED", shipment.CourierStatus)

	// Courier effects produce no outbound work.
	require.Empty(t, f.queue.enqueued)

	require.Len(t, f.published.events, 1)
	require.Equal(t, "Shipment Update: SHIPPED", f.published.events[0].Summary)
	require.Equal(t, "SHIPPED", f.published.events[0].ChangedFields["courierStatus"])
}

func TestProcessStaleEventIsIgnored(t *testing.T) {
	f := newConsumerFixture(t)
	f.seedInbox(t, "stale-key")

	newer := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	city := "X"
	f.orders.orders["o1"] = &models.Order{OrderID: "o1", City: &city, LastEventTs: &newer}

	msg := queueMessage(t, 3, 1, inbox.QueueEventMessage{
		OrderID:   "o1",
		DedupeKey: "stale-key",
		Source:    enums.EventSourceShopify,
		EventType: enums.EventTypeShopifyUpdated,
		EventTs:   time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC),
		Payload:   json.RawMessage(`{"shipping_address":{"city":"Y"}}`),
	})

	require.NoError(t, f.consumer.processMessage(context.Background(), msg))

	require.Equal(t, enums.InboxStatusIgnoredStale, f.inboxRepo.rows["stale-key"].Status)
	require.Equal(t, "X", *f.orders.orders["o1"].City)
	require.Equal(t, newer, f.orders.orders["o1"].LastEventTs.UTC())
	require.Empty(t, f.published.events)
	require.Empty(t, f.queue.enqueued)
	require.Equal(t, []int64{3}, f.queue.deleted)
}

func TestProcessUpdateNullsAbsentAddressFields(t *testing.T) {
	f := newConsumerFixture(t)
	f.seedInbox(t, "update-key")

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	city := "X"
	addr := "A"
	f.orders.orders["o1"] = &models.Order{OrderID: "o1", City: &city, Address1: &addr, LastEventTs: &older}

	msg := queueMessage(t, 4, 1, inbox.QueueEventMessage{
		OrderID:   "o1",
		DedupeKey: "update-key",
		Source:    enums.EventSourceShopify,
		EventType: enums.EventTypeShopifyUpdated,
		EventTs:   time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Payload:   json.RawMessage(`{"shipping_address":{"city":"Y"}}`),
	})

	require.NoError(t, f.consumer.processMessage(context.Background(), msg))

	order := f.orders.orders["o1"]
	require.Equal(t, "Y", *order.City)
	require.Nil(t, order.Address1)

	require.Len(t, f.published.events, 1)
	require.Equal(t, "Order Updated", f.published.events[0].Summary)
}

func TestMalformedMessageIsDroppedPermanently(t *testing.T) {
	f := newConsumerFixture(t)

	msg := models.QueueMessage{ID: 5, QueueName: queue.IngestEvents, Message: json.RawMessage(`"not an object"`), ReadCount: 1}
	require.NoError(t, f.consumer.processMessage(context.Background(), msg))

	require.Equal(t, []int64{5}, f.queue.deleted)
	require.Empty(t, f.published.events)
}

func TestPoisonMessageIsQuarantined(t *testing.T) {
	f := newConsumerFixture(t)
	f.seedInbox(t, "poison-key")

	msg := queueMessage(t, 6, 11, inbox.QueueEventMessage{
		OrderID:   "o1",
		DedupeKey: "poison-key",
		Source:    enums.EventSourceShopify,
		EventType: enums.EventTypeShopifyUpdated,
		EventTs:   time.Now(),
	})

	require.NoError(t, f.consumer.processMessage(context.Background(), msg))

	require.Equal(t, enums.InboxStatusFailed, f.inboxRepo.rows["poison-key"].Status)
	require.Equal(t, []int64{6}, f.queue.deleted)
	require.Nil(t, f.orders.orders["o1"])
}

func TestMissingInboxRowStillApplies(t *testing.T) {
	f := newConsumerFixture(t)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := queueMessage(t, 7, 1, inbox.QueueEventMessage{
		OrderID:   "o1",
		DedupeKey: "missing-key",
		Source:    enums.EventSourceShopify,
		EventType: enums.EventTypeShopifyCreated,
		EventTs:   ts,
		Payload:   json.RawMessage(`{"financial_status":"paid"}`),
	})

	require.NoError(t, f.consumer.processMessage(context.Background(), msg))
	require.NotNil(t, f.orders.orders["o1"])
	require.Equal(t, []int64{7}, f.queue.deleted)
}
