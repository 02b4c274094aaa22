package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderbridge-backend/pkg/errors"
	"github.com/angelmondragon/orderbridge-backend/pkg/pagination"
)

type stubOrdersRepo struct {
	orders map[string]*models.Order
	listed []models.Order
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	if order, ok := s.orders[orderID]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) UpdateFields(ctx context.Context, orderID string, fields map[string]any) error {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) CreateShipment(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) UpdateShipment(ctx context.Context, shipment *models.Shipment) error {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindWithShipments(ctx context.Context, orderID string) (*models.Order, error) {
	return s.FindByOrderID(ctx, orderID)
}

func (s *stubOrdersRepo) ListAfterCursor(ctx context.Context, params pagination.Params) ([]models.Order, error) {
	return s.listed, nil
}

func TestGetReturnsOrderWithShipments(t *testing.T) {
	repo := &stubOrdersRepo{orders: map[string]*models.Order{
		"o1": {
			OrderID:    "o1",
			CustomerID: "c1",
			Shipments: []models.Shipment{
				{OrderID: "o1", TrackingNumber: "T1", CourierStatus: "SHIPPED"},
			},
		},
	}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	resp, err := svc.Get(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, "o1", resp.OrderID)
	require.Len(t, resp.Shipments, 1)
	require.Equal(t, "T1", resp.Shipments[0].TrackingNumber)
}

func TestGetUnknownOrderIsNotFound(t *testing.T) {
	svc, err := NewService(&stubOrdersRepo{orders: map[string]*models.Order{}})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestListTrimsBufferAndSetsCursor(t *testing.T) {
	repo := &stubOrdersRepo{listed: []models.Order{
		{OrderID: "o1"}, {OrderID: "o2"}, {OrderID: "o3"},
	}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Orders, 2)
	require.Equal(t, "o2", resp.NextCursor)
}

func TestListLastPageHasNoCursor(t *testing.T) {
	repo := &stubOrdersRepo{listed: []models.Order{{OrderID: "o1"}}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Orders, 1)
	require.Empty(t, resp.NextCursor)
}
