package outbound

import "github.com/angelmondragon/orderbridge-backend/internal/orders"

// Message is the body placed on shopify_outbound: the changed-field map plus
// the post-update snapshot the dispatcher pushes upstream.
type Message struct {
	OrderID       string                `json:"order_id"`
	ChangedFields map[string]any        `json:"changed_fields"`
	Snapshot      *orders.OrderResponse `json:"snapshot,omitempty"`
}
