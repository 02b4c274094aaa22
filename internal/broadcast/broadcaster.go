package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultBufferSize = 256

// Event is one per-order change notification delivered to dashboard streams.
type Event struct {
	OrderID       string         `json:"orderId"`
	ServerTs      time.Time      `json:"serverTs"`
	ChangedFields map[string]any `json:"changedFields"`
	Summary       string         `json:"summary"`
}

// Subscription is one dashboard stream's view of the broadcaster.
type Subscription struct {
	id     uuid.UUID
	events chan Event
	once   sync.Once
	cancel func(id uuid.UUID)
}

// Events returns the stream channel. It is closed when the subscription or
// the broadcaster shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close removes the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel(s.id)
	})
}

// Broadcaster is the in-process publish/subscribe bus. Publish never blocks
// on a slow subscriber: when a subscriber's buffer is full, the oldest
// undelivered event is dropped to make room.
type Broadcaster struct {
	mtx         sync.RWMutex
	subscribers map[uuid.UUID]chan Event
	bufferSize  int
	closed      bool
}

// New builds a broadcaster. bufferSize <= 0 uses the default of 256.
func New(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Broadcaster{
		subscribers: make(map[uuid.UUID]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new stream. The caller must Close the subscription
// when done.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	id := uuid.New()
	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
	} else {
		b.subscribers[id] = ch
	}
	return &Subscription{id: id, events: ch, cancel: b.unsubscribe}
}

func (b *Broadcaster) unsubscribe(id uuid.UUID) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish delivers the event to every active subscriber without blocking.
func (b *Broadcaster) Publish(event Event) {
	b.mtx.RLock()
	defer b.mtx.RUnlock()

	for _, ch := range b.subscribers {
		for {
			select {
			case ch <- event:
			default:
				// Buffer full: drop the oldest undelivered event and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount reports how many streams are attached.
func (b *Broadcaster) SubscriberCount() int {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return len(b.subscribers)
}

// Close shuts down all subscriptions. Publish becomes a no-op afterwards.
func (b *Broadcaster) Close() {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
