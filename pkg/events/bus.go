package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// defaultSubscriberBuffer is the per-subscription channel capacity used when
// the caller passes a non-positive buffer size.
const defaultSubscriberBuffer = 64

// Subscription is one consumer's view of the bus. Events arrive on C until
// Unsubscribe, after which C is closed.
type Subscription struct {
	id uint64

	// C delivers events in publish order. The channel is buffered; when it
	// fills, new events for this subscriber are dropped, not queued.
	C <-chan Event

	ch chan Event
}

// Bus is the in-process publish/subscribe hub. Every component publishes
// lifecycle events here; the WebSocket manager, telemetry, and tests
// subscribe. Publish never blocks: a full subscriber loses the event and the
// drop counter increments, so one stalled consumer cannot back-pressure the
// scheduler.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		logger: slog.Default().With("component", "events"),
	}
}

// Subscribe registers a new consumer with the given channel buffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, C: ch, ch: ch}
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call more
// than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish fans evt out to every subscriber. Missing ID and Timestamp fields
// are filled in. Full subscribers are skipped with a warning.
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt = withIdentity(evt)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			n := b.dropped.Add(1)
			// Log on a coarse cadence; a wedged subscriber would otherwise
			// flood the log at publish rate.
			if n%100 == 1 {
				b.logger.Warn("Event dropped for slow subscriber",
					"type", evt.Type, "total_dropped", n)
			}
		}
	}
}

// Dropped returns the total number of events discarded because a
// subscriber's buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down: all subscriber channels close and later
// publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

func withIdentity(evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	return evt
}
