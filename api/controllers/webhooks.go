package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/angelmondragon/orderbridge-backend/api/responses"
	"github.com/angelmondragon/orderbridge-backend/internal/inbox"
	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderbridge-backend/pkg/errors"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
	"github.com/angelmondragon/orderbridge-backend/pkg/types"
)

const (
	webhookIDHeader = "x-shopify-webhook-id"
	topicHeader     = "x-shopify-topic"

	statusAccepted         = "Accepted"
	statusDuplicateIgnored = "Duplicate ignored"
)

// IngressService is the inbox write path the ingress adapters depend on.
type IngressService interface {
	Accept(ctx context.Context, event inbox.NewEvent) (inbox.AcceptResult, error)
}

type shopifyWebhookBody struct {
	ID        any        `json:"id"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// orderIDFromBody tolerates merchant payloads that carry the order id as a
// string or a number.
func orderIDFromBody(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// ShopifyOrderWebhook accepts merchant order create/update webhooks. The
// webhook id header, when present, becomes the upstream id for deduplication;
// the raw body is retained as the inbox payload.
func ShopifyOrderWebhook(svc IngressService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingress service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var body shopifyWebhookBody
		decoder := json.NewDecoder(bytes.NewReader(payload))
		decoder.UseNumber()
		if err := decoder.Decode(&body); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook body"))
			return
		}

		orderID := orderIDFromBody(body.ID)
		if orderID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "id is required"))
			return
		}

		eventTs := time.Now().UTC()
		if body.UpdatedAt != nil {
			eventTs = *body.UpdatedAt
		} else if body.CreatedAt != nil {
			eventTs = *body.CreatedAt
		}

		eventType := enums.EventType(r.Header.Get(topicHeader))
		if eventType == "" {
			eventType = enums.EventTypeShopifyUpdated
		}

		result, err := svc.Accept(ctx, inbox.NewEvent{
			Source:     enums.EventSourceShopify,
			UpstreamID: r.Header.Get(webhookIDHeader),
			OrderID:    orderID,
			EventType:  eventType,
			EventTs:    eventTs,
			Payload:    payload,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if !result.Inserted {
			responses.WriteSuccess(w, types.AcceptedResponse{Status: statusDuplicateIgnored})
			return
		}
		responses.WriteSuccess(w, types.AcceptedResponse{Status: statusAccepted, ID: result.ID})
	}
}
