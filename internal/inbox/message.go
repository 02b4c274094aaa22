package inbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
)

// QueueEventMessage is the body placed on ingest_events for every accepted
// event. The consumer validates order_id and dedupe_key before touching any
// order state.
type QueueEventMessage struct {
	OrderID   string            `json:"order_id"`
	DedupeKey string            `json:"dedupe_key"`
	Source    enums.EventSource `json:"source"`
	EventType enums.EventType   `json:"event_type"`
	EventTs   time.Time         `json:"event_ts"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}
