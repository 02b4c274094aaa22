package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/orderbridge-backend/pkg/db"
	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderbridge-backend/pkg/errors"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
	"github.com/angelmondragon/orderbridge-backend/pkg/metrics"
	"github.com/angelmondragon/orderbridge-backend/pkg/queue"
)

var errDuplicateEvent = errors.New("duplicate event")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type enqueuer interface {
	Enqueue(tx *gorm.DB, queueName string, body any, delay time.Duration) error
}

// NewEvent is a boundary event as the ingress adapters hand it over.
type NewEvent struct {
	Source     enums.EventSource
	UpstreamID string
	OrderID    string
	EventType  enums.EventType
	EventTs    time.Time
	Payload    json.RawMessage
}

// AcceptResult reports whether the event was stored or collapsed onto an
// existing inbox row.
type AcceptResult struct {
	Inserted  bool
	ID        string
	DedupeKey string
}

// Service is the ingress write path: one transaction inserts the inbox row
// and enqueues the ingest message, so neither can exist without the other.
type Service struct {
	db      txRunner
	repo    Repository
	queue   enqueuer
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics
}

type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Queue   enqueuer
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repo == nil {
		return nil, errors.New("inbox repository is required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue repository is required")
	}
	return &Service{
		db:      params.DB,
		repo:    params.Repo,
		queue:   params.Queue,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Accept stores the event and schedules it for processing. A duplicate
// dedupe key is not an error: the result carries Inserted=false and no
// message is enqueued.
func (s *Service) Accept(ctx context.Context, event NewEvent) (AcceptResult, error) {
	if event.OrderID == "" {
		return AcceptResult{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !event.Source.Valid() {
		return AcceptResult{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown event source")
	}
	if event.EventTs.IsZero() {
		event.EventTs = time.Now().UTC()
	}

	dedupeKey := DedupeKey(event.Source, event.UpstreamID, event.OrderID, event.EventType, event.EventTs, event.Payload)

	row := models.EventInbox{
		DedupeKey: dedupeKey,
		Source:    event.Source,
		OrderID:   event.OrderID,
		EventType: event.EventType,
		EventTs:   event.EventTs.UTC(),
		Payload:   event.Payload,
		Status:    enums.InboxStatusReceived,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, &row); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_event_inbox_dedupe_key") {
				return errDuplicateEvent
			}
			return err
		}

		msg := QueueEventMessage{
			OrderID:   event.OrderID,
			DedupeKey: dedupeKey,
			Source:    event.Source,
			EventType: event.EventType,
			EventTs:   row.EventTs,
			Payload:   event.Payload,
		}
		return s.queue.Enqueue(tx, queue.IngestEvents, msg, 0)
	})
	if err != nil {
		if errors.Is(err, errDuplicateEvent) {
			s.metrics.IncDuplicate(string(event.Source))
			if s.logg != nil {
				logCtx := s.logg.WithDedupeKey(ctx, dedupeKey)
				s.logg.Info(logCtx, "duplicate event ignored")
			}
			return AcceptResult{Inserted: false, DedupeKey: dedupeKey}, nil
		}
		return AcceptResult{}, err
	}

	s.metrics.IncAccepted(string(event.Source))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"dedupe_key": dedupeKey,
			"order_id":   event.OrderID,
			"event_type": event.EventType,
		})
		s.logg.Info(logCtx, "event accepted")
	}
	return AcceptResult{Inserted: true, ID: row.ID.String(), DedupeKey: dedupeKey}, nil
}
