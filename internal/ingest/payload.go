package ingest

import "encoding/json"

// shopifyOrderPayload is the merchant-side webhook body as far as the
// consumer cares about it. Pointers distinguish "absent" from zero values;
// absent address components null out stored state (last-writer-wins).
type shopifyOrderPayload struct {
	Customer         *customerPayload        `json:"customer"`
	ShippingAddress  *shippingAddressPayload `json:"shipping_address"`
	FinancialStatus  *string                 `json:"financial_status"`
	TotalAmount      *int64                  `json:"total_amount"`
	ShippingFeeCents *int64                  `json:"shipping_fee_cents"`
}

type customerPayload struct {
	ID string `json:"id"`
}

type shippingAddressPayload struct {
	Address1 *string `json:"address1"`
	Address2 *string `json:"address2"`
	City     *string `json:"city"`
	Province *string `json:"province"`
	Zip      *string `json:"zip"`
	Country  *string `json:"country"`
}

// courierStatusPayload is the courier-side event body.
type courierStatusPayload struct {
	TrackingNumber *string `json:"trackingNumber"`
	Status         *string `json:"status"`
}

func parseShopifyPayload(raw json.RawMessage) (*shopifyOrderPayload, error) {
	var payload shopifyOrderPayload
	if len(raw) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func parseCourierPayload(raw json.RawMessage) (*courierStatusPayload, error) {
	var payload courierStatusPayload
	if len(raw) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
