package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDelivered(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(8)
	defer bus.Unsubscribe(sub)

	bus.Publish(New(EventTaskCreated, "test", map[string]any{"description": "hello"}))

	select {
	case evt := <-sub.C:
		assert.Equal(t, EventTaskCreated, evt.Type)
		assert.Equal(t, "test", evt.Source)
		assert.Equal(t, "hello", evt.Data["description"])
		assert.NotEmpty(t, evt.ID)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	const subscribers = 5
	subs := make([]*Subscription, subscribers)
	for i := range subs {
		subs[i] = bus.Subscribe(8)
	}
	require.Equal(t, subscribers, bus.SubscriberCount())

	bus.Publish(New(EventAgentStarted, "runtime", nil))

	for i, sub := range subs {
		select {
		case evt := <-sub.C:
			assert.Equal(t, EventAgentStarted, evt.Type, "subscriber %d", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestBus_SlowSubscriberDropsNotBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// Buffer of 1 and nobody reading: publishes beyond the first must be
	// dropped rather than blocking the publisher.
	sub := bus.Subscribe(1)
	defer bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Publish(New(EventMessageSent, "runtime", nil))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	assert.Equal(t, uint64(9), bus.Dropped())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(8)
	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Channel is closed so a pending receive unblocks.
	_, ok := <-sub.C
	assert.False(t, ok)

	// Double unsubscribe is a no-op.
	assert.NotPanics(t, func() { bus.Unsubscribe(sub) })
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(8)
	bus.Close()

	_, ok := <-sub.C
	assert.False(t, ok, "subscriber channel should be closed")

	assert.NotPanics(t, func() {
		bus.Publish(New(EventTaskCompleted, "swarm", nil))
	})
	assert.Nil(t, bus.Subscribe(8), "Subscribe after Close returns nil")
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	const publishers = 8
	const perPublisher = 50

	sub := bus.Subscribe(publishers * perPublisher)
	defer bus.Unsubscribe(sub)

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				bus.Publish(New(EventTaskStatus, "swarm", nil))
			}
		}()
	}
	wg.Wait()

	received := 0
	for {
		select {
		case <-sub.C:
			received++
		default:
			assert.Equal(t, publishers*perPublisher, received)
			assert.Equal(t, uint64(0), bus.Dropped())
			return
		}
	}
}

func TestBus_IdentityAssigned(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(2)
	defer bus.Unsubscribe(sub)

	// Publish an event built by hand, without New().
	bus.Publish(Event{Type: EventTaskFailed, Source: "swarm"})

	evt := <-sub.C
	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Timestamp.IsZero())
}
