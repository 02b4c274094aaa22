package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order is the canonical order record maintained from merchant and courier
// events. OrderID is the stable business identifier; ID is the surrogate key.
type Order struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          string         `gorm:"column:order_id;uniqueIndex;not null"`
	CustomerID       string         `gorm:"column:customer_id;not null;default:''"`
	Status           string         `gorm:"column:status;not null;default:''"`
	TotalAmount      int64          `gorm:"column:total_amount;not null;default:0"`
	Address1         *string        `gorm:"column:address1"`
	Address2         *string        `gorm:"column:address2"`
	City             *string        `gorm:"column:city"`
	Province         *string        `gorm:"column:province"`
	Zip              *string        `gorm:"column:zip"`
	Country          *string        `gorm:"column:country"`
	ShippingFeeCents int64          `gorm:"column:shipping_fee_cents;not null;default:0"`
	LastEventTs      *time.Time     `gorm:"column:last_event_ts"`
	Shipments        []Shipment     `gorm:"foreignKey:OrderID;references:OrderID"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        gorm.DeletedAt `gorm:"column:deleted_at"`
}

func (Order) TableName() string { return "orders" }
