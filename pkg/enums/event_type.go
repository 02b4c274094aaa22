package enums

// EventType is the lifecycle event kind carried by an inbox entry.
type EventType string

const (
	EventTypeShopifyCreated      EventType = "SHOPIFY_CREATED"
	EventTypeShopifyUpdated      EventType = "SHOPIFY_UPDATED"
	EventTypeCourierStatusUpdate EventType = "COURIER_STATUS_UPDATE"
)

// IsMerchant reports whether the event originates on the merchant side and
// therefore produces outbound work.
func (t EventType) IsMerchant() bool {
	return t == EventTypeShopifyCreated || t == EventTypeShopifyUpdated
}
