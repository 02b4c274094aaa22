package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/angelmondragon/orderbridge-backend/api/responses"
	"github.com/angelmondragon/orderbridge-backend/api/validators"
	"github.com/angelmondragon/orderbridge-backend/internal/inbox"
	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderbridge-backend/pkg/errors"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
	"github.com/angelmondragon/orderbridge-backend/pkg/types"
)

type courierStatusRequest struct {
	OrderID        string    `json:"orderId" validate:"required"`
	EventType      string    `json:"eventType" validate:"required"`
	EventTs        time.Time `json:"eventTs" validate:"required"`
	TrackingNumber string    `json:"trackingNumber"`
	Status         string    `json:"status"`
}

// CourierStatusUpdate accepts courier network status events. Couriers carry
// no retry id, so deduplication rides the content-hash fallback.
func CourierStatusUpdate(svc IngressService, logg *logger.Logger) http.HandlerFunc {
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

		var body courierStatusRequest
		if err := json.Unmarshal(payload, &body); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event body"))
			return
		}
		if err := validators.ValidateStruct(&body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Accept(ctx, inbox.NewEvent{
			Source:    enums.EventSourceCourier,
			OrderID:   body.OrderID,
			EventType: enums.EventType(body.EventType),
			EventTs:   body.EventTs,
			Payload:   payload,
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
