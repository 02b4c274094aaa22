package enums

// EventSource identifies which producer delivered an event.
type EventSource string

const (
	EventSourceShopify EventSource = "shopify"
	EventSourceCourier EventSource = "courier"
)

func (s EventSource) Valid() bool {
	switch s {
	case EventSourceShopify, EventSourceCourier:
		return true
	}
	return false
}
