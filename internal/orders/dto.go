package orders

import (
	"time"

	"github.com/angelmondragon/orderbridge-backend/pkg/db/models"
)

// OrderResponse is the external shape of an order. Fields are copied
// explicitly; internal columns never leak by accident.
type OrderResponse struct {
	OrderID          string             `json:"orderId"`
	CustomerID       string             `json:"customerId"`
	Status           string             `json:"status"`
	TotalAmount      int64              `json:"totalAmount"`
	Address1         *string            `json:"address1"`
	Address2         *string            `json:"address2"`
	City             *string            `json:"city"`
	Province         *string            `json:"province"`
	Zip              *string            `json:"zip"`
	Country          *string            `json:"country"`
	ShippingFeeCents int64              `json:"shippingFeeCents"`
	LastEventTs      *time.Time         `json:"lastEventTs"`
	Shipments        []ShipmentResponse `json:"shipments"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// ShipmentResponse is the external shape of a shipment.
type ShipmentResponse struct {
	OrderID        string    `json:"orderId"`
	CourierStatus  string    `json:"courierStatus"`
	TrackingNumber string    `json:"trackingNumber"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// OrderListResponse is one page of orders plus the cursor for the next page.
type OrderListResponse struct {
	Orders     []OrderResponse `json:"orders"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func NewOrderResponse(order *models.Order) *OrderResponse {
	if order == nil {
		return nil
	}
	resp := &OrderResponse{
		OrderID:          order.OrderID,
		CustomerID:       order.CustomerID,
		Status:           order.Status,
		TotalAmount:      order.TotalAmount,
		Address1:         order.Address1,
		Address2:         order.Address2,
		City:             order.City,
		Province:         order.Province,
		Zip:              order.Zip,
		Country:          order.Country,
		ShippingFeeCents: order.ShippingFeeCents,
		LastEventTs:      order.LastEventTs,
		Shipments:        make([]ShipmentResponse, 0, len(order.Shipments)),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for i := range order.Shipments {
		resp.Shipments = append(resp.Shipments, NewShipmentResponse(&order.Shipments[i]))
	}
	return resp
}

func NewShipmentResponse(shipment *models.Shipment) ShipmentResponse {
	return ShipmentResponse{
		OrderID:        shipment.OrderID,
		CourierStatus:  shipment.CourierStatus,
		TrackingNumber: shipment.TrackingNumber,
		CreatedAt:      shipment.CreatedAt,
		UpdatedAt:      shipment.UpdatedAt,
	}
}
