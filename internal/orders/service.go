package orders

import (
	"context"
	"errors"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/orderbridge-backend/pkg/errors"
	"github.com/angelmondragon/orderbridge-backend/pkg/pagination"
)

type service struct {
	repo Repository
}

// NewService builds the read-side orders service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("orders repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, orderID string) (*OrderResponse, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindWithShipments(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return NewOrderResponse(order), nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*OrderListResponse, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListAfterCursor(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}

	resp := &OrderListResponse{Orders: make([]OrderResponse, 0, len(rows))}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	for i := range rows {
		resp.Orders = append(resp.Orders, *NewOrderResponse(&rows[i]))
	}
	if hasMore && len(resp.Orders) > 0 {
		resp.NextCursor = resp.Orders[len(resp.Orders)-1].OrderID
	}
	return resp, nil
}
