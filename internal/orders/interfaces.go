package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
	"github.com/angelmondragon/orderbridge-backend/pkg/pagination"
)

// Repository is the persistence surface for the order aggregate. Mutating
// methods are expected to run inside a per-order-locked transaction via
// WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	UpdateFields(ctx context.Context, orderID string, fields map[string]any) error

	FindShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error)
	CreateShipment(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error)
	UpdateShipment(ctx context.Context, shipment *models.Shipment) error

	FindWithShipments(ctx context.Context, orderID string) (*models.Order, error)
	ListAfterCursor(ctx context.Context, params pagination.Params) ([]models.Order, error)
}

// Service is the read surface behind GET /orders.
type Service interface {
	Get(ctx context.Context, orderID string) (*OrderResponse, error)
	List(ctx context.Context, params pagination.Params) (*OrderListResponse, error)
}
