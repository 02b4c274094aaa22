package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderbridge-backend/pkg/db"
	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
)

// Repository implements the durable queue over the queue_messages table.
// Delivery is at-least-once: a claimed message whose visibility window
// elapses before Delete becomes claimable again.
type Repository struct {
	client *db.Client
}

func NewRepository(client *db.Client) *Repository {
	return &Repository{client: client}
}

// Enqueue appends a message to the named queue. When tx is non-nil the insert
// joins the caller's transaction and the message becomes visible only on
// commit. A positive delay defers first visibility.
func (r *Repository) Enqueue(tx *gorm.DB, queueName string, body any, delay time.Duration) error {
	if queueName == "" {
		return errors.New("queue name is required")
	}
	conn := tx
	if conn == nil {
		conn = r.client.DB()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling queue message: %w", err)
	}
	if delay < 0 {
		delay = 0
	}

	now := time.Now().UTC()
	row := models.QueueMessage{
		QueueName:  queueName,
		Message:    payload,
		EnqueuedAt: now,
		VisibleAt:  now.Add(delay),
	}
	return conn.Create(&row).Error
}

// ReadWithPoll claims up to opts.MaxCount messages, blocking up to
// opts.MaxPoll for one to arrive. An empty slice means the poll window
// elapsed with nothing claimable.
func (r *Repository) ReadWithPoll(ctx context.Context, queueName string, opts ReadOptions) ([]models.QueueMessage, error) {
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	opts = opts.withDefaults()

	deadline := time.Now().Add(opts.MaxPoll)
	for {
		claimed, err := r.claim(ctx, queueName, opts)
		if err != nil {
			return nil, err
		}
		if len(claimed) > 0 {
			return claimed, nil
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}
}

func (r *Repository) claim(ctx context.Context, queueName string, opts ReadOptions) ([]models.QueueMessage, error) {
	var claimed []models.QueueMessage
	err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()

		query := tx.Model(&models.QueueMessage{}).
			Where("queue_name = ? AND visible_at <= ?", queueName, now).
			Order("id ASC").
			Limit(opts.MaxCount)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var rows []models.QueueMessage
		if err := query.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}

		visibleAt := now.Add(opts.Visibility)
		err := tx.Model(&models.QueueMessage{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"visible_at": visibleAt,
				"read_count": gorm.Expr("read_count + 1"),
			}).Error
		if err != nil {
			return err
		}

		for i := range rows {
			rows[i].VisibleAt = visibleAt
			rows[i].ReadCount++
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Delete removes a message permanently. When tx is non-nil the delete joins
// the caller's transaction so it takes effect atomically with the business
// writes.
func (r *Repository) Delete(tx *gorm.DB, id int64) error {
	conn := tx
	if conn == nil {
		conn = r.client.DB()
	}
	return conn.Delete(&models.QueueMessage{}, id).Error
}

// Depth counts messages currently on the named queue regardless of
// visibility. Used by the queue tests to check drainage.
func (r *Repository) Depth(ctx context.Context, queueName string) (int64, error) {
	var count int64
	err := r.client.DB().WithContext(ctx).
		Model(&models.QueueMessage{}).
		Where("queue_name = ?", queueName).
		Count(&count).Error
	return count, err
}
