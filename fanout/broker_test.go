package fanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deckmesh/core"
)

func event(deckID string, version int64) core.Event {
	return core.Event{DeckID: deckID, Version: version, Type: core.EventSlideAdded}
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBroker()
	s1 := b.Subscribe("deck-1")
	s2 := b.Subscribe("deck-1")
	other := b.Subscribe("deck-2")

	b.Publish(event("deck-1", 1))

	assert.Equal(t, int64(1), (<-s1.Events()).Version)
	assert.Equal(t, int64(1), (<-s2.Events()).Version)
	select {
	case ev := <-other.Events():
		t.Fatalf("subscriber of another deck received %v", ev)
	default:
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBroker(func(o *Options) { o.BufferSize = 1 })
	slow := b.Subscribe("deck-1")
	fast := b.Subscribe("deck-1")

	b.Publish(event("deck-1", 1))
	assert.Equal(t, int64(1), (<-fast.Events()).Version)

	// slow's buffer is now full; further publishes drop for slow only.
	for v := int64(2); v <= 4; v++ {
		b.Publish(event("deck-1", v))
		assert.Equal(t, v, (<-fast.Events()).Version)
	}

	assert.Equal(t, 3, slow.Dropped())
	assert.Equal(t, int64(1), (<-slow.Events()).Version)
}

func TestSubscriptionCancel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("deck-1")
	require.Equal(t, 1, b.SubscriberCount("deck-1"))

	sub.Cancel()
	sub.Cancel() // idempotent

	assert.Equal(t, 0, b.SubscriberCount("deck-1"))
	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed")

	// Publishing after cancel must not panic or deliver.
	b.Publish(event("deck-1", 1))
}

func TestCloseDeck(t *testing.T) {
	b := NewBroker()
	s1 := b.Subscribe("deck-1")
	s2 := b.Subscribe("deck-1")

	b.CloseDeck("deck-1")

	_, ok := <-s1.Events()
	assert.False(t, ok)
	_, ok = <-s2.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount("deck-1"))

	// Cancel after CloseDeck stays idempotent.
	s1.Cancel()
}
