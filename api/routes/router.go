package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderbridge-backend/api/controllers"
	"github.com/angelmondragon/orderbridge-backend/api/middleware"
	"github.com/angelmondragon/orderbridge-backend/internal/broadcast"
	"github.com/angelmondragon/orderbridge-backend/internal/orders"
	"github.com/angelmondragon/orderbridge-backend/pkg/db"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
)

// NewRouter wires the ingress adapters, the read API, and the dashboard
// stream. The paths are part of the producer contracts; changing them breaks
// webhook registrations.
func NewRouter(
	logg *logger.Logger,
	dbP db.Pinger,
	ingressService controllers.IngressService,
	ordersService orders.Service,
	broadcaster *broadcast.Broadcaster,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(dbP, logg))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhooks/shopify/orders", controllers.ShopifyOrderWebhook(ingressService, logg))
	r.Post("/events/courier/status_update", controllers.CourierStatusUpdate(ingressService, logg))

	r.Get("/orders", controllers.ListOrders(ordersService, logg))
	r.Get("/orders/{id}", controllers.GetOrder(ordersService, logg))

	r.Get("/stream/shipments", controllers.StreamShipments(broadcaster, logg))

	return r
}
