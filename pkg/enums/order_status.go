package enums

// OrderStatus values are free-form strings carried from the merchant payload.
// PendingPartial is the distinguished value for orders whose first-seen event
// was not a create.
const (
	OrderStatusPendingPartial = "PENDING_PARTIAL"
)
