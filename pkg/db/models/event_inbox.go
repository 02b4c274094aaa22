package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
)

// EventInbox is the durable record of every event accepted at the boundary.
// The unique index on DedupeKey is the sole deduplication mechanism.
type EventInbox struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DedupeKey   string            `gorm:"column:dedupe_key;uniqueIndex:ux_event_inbox_dedupe_key;not null"`
	Source      enums.EventSource `gorm:"column:source;type:text;not null"`
	OrderID     string            `gorm:"column:order_id;not null"`
	EventType   enums.EventType   `gorm:"column:event_type;type:text;not null"`
	EventTs     time.Time         `gorm:"column:event_ts;not null"`
	Payload     json.RawMessage   `gorm:"column:payload;type:jsonb"`
	Status      enums.InboxStatus `gorm:"column:status;type:text;not null;default:'RECEIVED'"`
	ProcessedAt *time.Time        `gorm:"column:processed_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (EventInbox) TableName() string { return "event_inbox" }
