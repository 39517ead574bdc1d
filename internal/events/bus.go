// Package events carries the run's side-channel event stream: a
// channel-based pub-sub bus with per-topic and all-topic subscriptions.
// Publishing never blocks; slow subscribers drop events rather than
// stalling the run.
package events

import (
	"sync"
)

// EventBus fans events out to subscriber channels by topic.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	allSubs []chan Event
	closed  bool
}

// NewEventBus creates an event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events published to the given
// topic. bufSize defaults to 256 if <= 0.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.add(topic, bufSize)
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.add("", bufSize)
}

func (b *EventBus) add(topic string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	if topic == "" {
		b.allSubs = append(b.allSubs, ch)
	} else {
		b.subs[topic] = append(b.subs[topic], ch)
	}
	return ch
}

// Publish sends an event to the topic's subscribers and every all-topic
// subscriber. If a subscriber's buffer is full the event is dropped for
// that subscriber.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes the bus and every subscriber channel. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
