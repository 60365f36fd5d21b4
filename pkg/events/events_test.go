package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{
		Type:    EventSwarmLaunched,
		SwarmID: "swarm-1",
		Message: "launched",
	})

	select {
	case ev := <-sub:
		assert.Equal(t, EventSwarmLaunched, ev.Type)
		assert.Equal(t, "swarm-1", ev.SwarmID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestSlowSubscriberDoesNotBlockBroadcast(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe()
	fast := b.Subscribe()

	// Overflow the slow subscriber's buffer
	for i := 0; i < 200; i++ {
		b.Publish(&Event{Type: EventTaskCompleted, TaskID: "t"})
	}

	// The fast subscriber still receives events
	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber starved")
	}
	_ = slow

	require.Equal(t, 2, b.SubscriberCount())
}

func TestStopIsIdempotent(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	b.Stop() // must not panic
}
