package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/orderbridge-backend/internal/broadcast"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
)

const streamHeartbeat = 15 * time.Second

// StreamShipments serves GET /stream/shipments as Server-Sent Events. Each
// change notification goes out as a shipment_update event; a comment ping
// keeps idle connections alive through proxies.
func StreamShipments(b *broadcast.Broadcaster, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := b.Subscribe()
		defer sub.Close()

		if logg != nil {
			logg.Info(ctx, "shipment stream attached")
		}

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				if logg != nil {
					logg.Info(ctx, "shipment stream detached")
				}
				return

			case event, open := <-sub.Events():
				if !open {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					if logg != nil {
						logg.Error(ctx, "failed to encode stream event", err)
					}
					continue
				}
				fmt.Fprintf(w, "event: shipment_update\ndata: %s\n\n", data)
				flusher.Flush()

			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
