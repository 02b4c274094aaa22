package models

import (
	"encoding/json"
	"time"
)

// QueueMessage is one entry on a named durable queue. A message is claimable
// while visible_at is in the past; reads advance visible_at by the caller's
// visibility window and bump read_count.
type QueueMessage struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	QueueName  string          `gorm:"column:queue_name;index:ix_queue_messages_claim,priority:1;not null"`
	Message    json.RawMessage `gorm:"column:message;type:jsonb"`
	EnqueuedAt time.Time       `gorm:"column:enqueued_at;not null"`
	VisibleAt  time.Time       `gorm:"column:visible_at;index:ix_queue_messages_claim,priority:2;not null"`
	ReadCount  int             `gorm:"column:read_count;not null;default:0"`
}

func (QueueMessage) TableName() string { return "queue_messages" }
