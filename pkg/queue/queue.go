package queue

import "time"

// Named queues. Both live in the same relational store as the business
// tables so enqueues and deletes can join business transactions.
const (
	IngestEvents    = "ingest_events"
	ShopifyOutbound = "shopify_outbound"
)

// ReadOptions tunes a long-poll claim.
type ReadOptions struct {
	// Visibility is how long claimed messages stay invisible to other readers.
	Visibility time.Duration
	// MaxCount caps how many messages one claim returns.
	MaxCount int
	// MaxPoll bounds how long ReadWithPoll blocks waiting for a message.
	MaxPoll time.Duration
	// PollInterval is the sleep between empty claim attempts.
	PollInterval time.Duration
}

func (o ReadOptions) withDefaults() ReadOptions {
	if o.Visibility <= 0 {
		o.Visibility = 30 * time.Second
	}
	if o.MaxCount <= 0 {
		o.MaxCount = 1
	}
	if o.MaxPoll < 0 {
		o.MaxPoll = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	return o
}
