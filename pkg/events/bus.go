package events

import (
	"sync"
	"time"
)

// RingCapacity is how many events the bus retains. Clients further behind
// than this lose the gap silently; the dashboard reconciles via REST.
const RingCapacity = 200

// Subscriber is a registered listener's wakeup handle. The channel carries
// no data, it only signals that new events are available; consumers drain
// them with EventsSince.
type Subscriber struct {
	notify chan struct{}
}

// Notify returns the wakeup channel. Signals are coalesced: one pending
// signal may cover any number of published events.
func (s *Subscriber) Notify() <-chan struct{} {
	return s.notify
}

// Bus is the bounded in-process event bus. All methods are safe for
// concurrent use.
type Bus struct {
	mu          sync.Mutex
	events      []Event
	nextID      int64
	subscribers map[*Subscriber]struct{}

	// onPublish, when set, runs after each publish outside the bus lock.
	onPublish func(Event)
}

// NewBus creates an empty bus. The first published event gets ID 1.
func NewBus() *Bus {
	return &Bus{
		nextID:      1,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// OnPublish installs a hook invoked after every publish, outside the bus
// lock. Used for metrics. Must be called before the bus is shared.
func (b *Bus) OnPublish(fn func(Event)) {
	b.onPublish = fn
}

// Publish appends an event to the ring, assigns it the next ID, and wakes
// all subscribers. The oldest event is dropped once the ring is full.
func (b *Bus) Publish(eventType string, data any) Event {
	b.mu.Lock()
	ev := Event{
		ID:        b.nextID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	b.nextID++
	b.events = append(b.events, ev)
	if len(b.events) > RingCapacity {
		b.events = b.events[len(b.events)-RingCapacity:]
	}

	subs := make([]*Subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	// Signal outside the lock so a slow subscriber cannot stall publishers.
	for _, sub := range subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}

	if b.onPublish != nil {
		b.onPublish(ev)
	}

	return ev
}

// Subscribe registers a listener and returns its handle together with the
// newest event ID at subscription time (0 when nothing has been published).
// Consumers start their drain loop from that ID to see only future events.
func (b *Bus) Subscribe() (*Subscriber, int64) {
	sub := &Subscriber{notify: make(chan struct{}, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub] = struct{}{}
	return sub, b.nextID - 1
}

// Unsubscribe removes a listener. Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
}

// SubscriberCount returns how many listeners are registered.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// EventsSince returns all retained events with IDs greater than the cursor,
// in publication order.
func (b *Bus) EventsSince(id int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, 0)
	for _, ev := range b.events {
		if ev.ID > id {
			out = append(out, ev)
		}
	}
	return out
}
