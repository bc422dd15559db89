package service

import "sync"

// Subscription receives the events its filter accepts.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	filter func(Event) bool
}

// EventBus fans session events out to subscribers without blocking publishers.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*Subscription]struct{})}
}

// Publish delivers e to every matching subscriber. A full subscriber misses e.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber. A nil filter accepts everything.
func (b *EventBus) Subscribe(filter func(Event) bool) *Subscription {
	ch := make(chan Event, 64)
	sub := &Subscription{C: ch, ch: ch, filter: filter}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
