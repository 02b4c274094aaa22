package models

import (
	"time"

	"github.com/google/uuid"
)

// Shipment is the courier tracking state for an order. The consumer enforces
// at most one active shipment per order through upsert-by-order-id.
type Shipment struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        string    `gorm:"column:order_id;index;not null"`
	CourierStatus  string    `gorm:"column:courier_status;not null;default:''"`
	TrackingNumber string    `gorm:"column:tracking_number;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Shipment) TableName() string { return "shipments" }
