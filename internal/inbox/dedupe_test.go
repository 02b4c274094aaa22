package inbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
)

func TestDedupeKeyPrefersUpstreamID(t *testing.T) {
	key := DedupeKey(enums.EventSourceShopify, "w1", "o1", enums.EventTypeShopifyUpdated, time.Now(), nil)
	require.Equal(t, "shopify:w1", key)
}

func TestDedupeKeyFallbackIsStableAcrossKeyOrder(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := json.RawMessage(`{"b":2,"a":{"y":1,"x":[1,2]}}`)
	b := json.RawMessage(`{"a":{"x":[1,2],"y":1},"b":2}`)

	keyA := DedupeKey(enums.EventSourceCourier, "", "o1", enums.EventTypeCourierStatusUpdate, ts, a)
	keyB := DedupeKey(enums.EventSourceCourier, "", "o1", enums.EventTypeCourierStatusUpdate, ts, b)
	require.Equal(t, keyA, keyB)
	require.Len(t, keyA, 64)
}

func TestDedupeKeyFallbackDistinguishesPayloads(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := json.RawMessage(`{"status":"SHIPPED"}`)
	b := json.RawMessage(`{"status":"DELIVERED"}`)

	keyA := DedupeKey(enums.EventSourceCourier, "", "o1", enums.EventTypeCourierStatusUpdate, ts, a)
	keyB := DedupeKey(enums.EventSourceCourier, "", "o1", enums.EventTypeCourierStatusUpdate, ts, b)
	require.NotEqual(t, keyA, keyB)
}

func TestDedupeKeyFallbackDistinguishesTimestamps(t *testing.T) {
	payload := json.RawMessage(`{"status":"SHIPPED"}`)
	a := DedupeKey(enums.EventSourceCourier, "", "o1", enums.EventTypeCourierStatusUpdate, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), payload)
	b := DedupeKey(enums.EventSourceCourier, "", "o1", enums.EventTypeCourierStatusUpdate, time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC), payload)
	require.NotEqual(t, a, b)
}

func TestDedupeKeyNumbersKeepLiteralForm(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := json.RawMessage(`{"amount":100}`)
	b := json.RawMessage(`{"amount":1e2}`)

	keyA := DedupeKey(enums.EventSourceCourier, "", "o1", enums.EventTypeCourierStatusUpdate, ts, a)
	keyB := DedupeKey(enums.EventSourceCourier, "", "o1", enums.EventTypeCourierStatusUpdate, ts, b)
	require.NotEqual(t, keyA, keyB)
}

func TestDedupeKeyWhitespaceOnlyUpstreamIDFallsBack(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := DedupeKey(enums.EventSourceShopify, "   ", "o1", enums.EventTypeShopifyCreated, ts, nil)
	require.Len(t, key, 64)
}
