package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalyst/enrich/pkg/types"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(types.EventCostAlert, map[string]any{"provider": "openai"})

	select {
	case ev := <-ch:
		assert.Equal(t, types.EventCostAlert, ev.Type)
		assert.Equal(t, "openai", ev.Data["provider"])
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open, "channel closed after cancel")

	// Publishing after cancel must not panic.
	b.Publish(types.EventProviderStatus, nil)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBuffer*3; i++ {
			b.Publish(types.EventModelUpdate, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBus(nil)
	b.Close()
	b.Close() // idempotent

	ch, cancel := b.Subscribe()
	defer cancel()
	_, open := <-ch
	require.False(t, open)
}
