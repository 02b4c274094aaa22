package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// Repository is the persistence surface for event_inbox rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, row *models.EventInbox) error
	FindByDedupeKey(ctx context.Context, dedupeKey string) (*models.EventInbox, error)
	MarkStatus(ctx context.Context, id uuid.UUID, status enums.InboxStatus, processedAt time.Time) error
	CountByStatus(ctx context.Context, status enums.InboxStatus) (int64, error)
}

// NewRepository builds an inbox repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, row *models.EventInbox) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindByDedupeKey(ctx context.Context, dedupeKey string) (*models.EventInbox, error) {
	var row models.EventInbox
	err := r.db.WithContext(ctx).
		Where("dedupe_key = ?", dedupeKey).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) MarkStatus(ctx context.Context, id uuid.UUID, status enums.InboxStatus, processedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.EventInbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       status,
			"processed_at": processedAt,
		}).Error
}

func (r *repository) CountByStatus(ctx context.Context, status enums.InboxStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.EventInbox{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
