package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderbridge-backend/internal/inbox"
	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
)

type stubIngressService struct {
	accepted []inbox.NewEvent
	result   inbox.AcceptResult
	err      error
}

func (s *stubIngressService) Accept(ctx context.Context, event inbox.NewEvent) (inbox.AcceptResult, error) {
	s.accepted = append(s.accepted, event)
	if s.err != nil {
		return inbox.AcceptResult{}, s.err
	}
	return s.result, nil
}

func TestShopifyWebhookAccepts(t *testing.T) {
	svc := &stubIngressService{result: inbox.AcceptResult{Inserted: true, ID: "row-1"}}
	handler := ShopifyOrderWebhook(svc, nil)

	body := `{"id":"o1","created_at":"2026-01-01T00:00:00Z","customer":{"id":"c1"},"shipping_address":{"address1":"A","city":"X"},"financial_status":"paid"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/orders", strings.NewReader(body))
	req.Header.Set("x-shopify-webhook-id", "w1")
	req.Header.Set("x-shopify-topic", "SHOPIFY_CREATED")
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Accepted", resp["status"])
	require.Equal(t, "row-1", resp["id"])

	require.Len(t, svc.accepted, 1)
	event := svc.accepted[0]
	require.Equal(t, enums.EventSourceShopify, event.Source)
	require.Equal(t, "w1", event.UpstreamID)
	require.Equal(t, "o1", event.OrderID)
	require.Equal(t, enums.EventTypeShopifyCreated, event.EventType)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), event.EventTs.UTC())
	require.JSONEq(t, body, string(event.Payload))
}

func TestShopifyWebhookPrefersUpdatedAt(t *testing.T) {
	svc := &stubIngressService{result: inbox.AcceptResult{Inserted: true, ID: "row-1"}}
	handler := ShopifyOrderWebhook(svc, nil)

	body := `{"id":"o1","created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:01:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), svc.accepted[0].EventTs.UTC())
	// No topic header falls back to an update event.
	require.Equal(t, enums.EventTypeShopifyUpdated, svc.accepted[0].EventType)
}

func TestShopifyWebhookNumericID(t *testing.T) {
	svc := &stubIngressService{result: inbox.AcceptResult{Inserted: true}}
	handler := ShopifyOrderWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/orders", strings.NewReader(`{"id":123456}`))
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "123456", svc.accepted[0].OrderID)
}

func TestShopifyWebhookMissingIDIs400(t *testing.T) {
	svc := &stubIngressService{}
	handler := ShopifyOrderWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/orders", strings.NewReader(`{"customer":{"id":"c1"}}`))
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.accepted)
}

func TestShopifyWebhookDuplicate(t *testing.T) {
	svc := &stubIngressService{result: inbox.AcceptResult{Inserted: false}}
	handler := ShopifyOrderWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/orders", strings.NewReader(`{"id":"o1"}`))
	req.Header.Set("x-shopify-webhook-id", "w1")
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Duplicate ignored", resp["status"])
	require.Empty(t, resp["id"])
}
