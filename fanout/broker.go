package fanout

import (
	"sync"

	"github.com/hupe1980/deckmesh/core"
)

// DefaultBufferSize is the per-subscription channel buffer.
const DefaultBufferSize = 64

// Broker fans deck events out to live subscribers. Topic granularity is one
// deck. Safe for concurrent use.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	bufSize int
}

// Options configures a Broker.
type Options struct {
	// BufferSize sets the per-subscription channel buffer.
	BufferSize int
}

// NewBroker constructs an empty broker.
func NewBroker(optFns ...func(o *Options)) *Broker {
	opts := Options{BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Broker{
		subs:    make(map[string]map[*Subscription]struct{}),
		bufSize: opts.BufferSize,
	}
}

// Subscription is one live listener on a deck's event stream.
type Subscription struct {
	broker  *Broker
	deckID  string
	ch      chan core.Event
	once    sync.Once
	mu      sync.Mutex
	dropped int
}

// Events returns the delivery channel. It is closed when the subscription is
// cancelled.
func (s *Subscription) Events() <-chan core.Event { return s.ch }

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Cancel detaches the subscription and closes its channel. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.ch)
	})
}

// Subscribe registers a listener for events appended after subscription time.
func (b *Broker) Subscribe(deckID string) *Subscription {
	sub := &Subscription{broker: b, deckID: deckID, ch: make(chan core.Event, b.bufSize)}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[deckID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[deckID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every live subscriber of its deck without blocking.
func (b *Broker) Publish(ev core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[ev.DeckID] {
		select {
		case sub.ch <- ev:
		default:
			sub.mu.Lock()
			sub.dropped++
			sub.mu.Unlock()
		}
	}
}

// SubscriberCount reports the number of live subscriptions for a deck.
func (b *Broker) SubscriberCount(deckID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[deckID])
}

// CloseDeck cancels every subscription for a deck, used on deck deletion.
func (b *Broker) CloseDeck(deckID string) {
	b.mu.Lock()
	set := b.subs[deckID]
	delete(b.subs, deckID)
	b.mu.Unlock()
	for sub := range set {
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.deckID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.deckID)
		}
	}
}
