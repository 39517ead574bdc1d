// Package bus provides the in-process message bus between pods and the
// controller: publish/subscribe with broadcast and point-to-point
// delivery, queued delivery for not-yet-subscribed recipients,
// acknowledgement tracking, and a polling request/response round-trip.
// The bus is per-run-scoped; it is never shared across work orders.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Broadcast is the recipient ID that delivers to every subscriber.
const Broadcast = "broadcast"

// MessageType categorizes bus traffic.
type MessageType string

const (
	TypeRequest  MessageType = "request"
	TypeResponse MessageType = "response"
	TypeUpdate   MessageType = "update"
	TypeArtifact MessageType = "artifact"
	TypeStatus   MessageType = "status"
	TypeError    MessageType = "error"
)

// Priority orders competing messages.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Message is a unit of inter-pod communication. CorrelationID links a
// response back to the request it answers.
type Message struct {
	ID            string
	From          string
	To            string // pod ID or Broadcast
	Type          MessageType
	Payload       string
	CorrelationID string
	Priority      Priority
	Timestamp     time.Time
	Acknowledged  bool
}

// Handler consumes a delivered message.
type Handler func(Message)

// Bus is the message bus. History is capped: the most recent historySize
// messages are retained for audit and request/response correlation,
// oldest evicted first.
type subscriber struct {
	id      int
	handler Handler
}

type Bus struct {
	mu          sync.Mutex
	subs        map[string][]subscriber
	nextSubID   int
	queued      map[string][]Message // messages for recipients not yet subscribed
	history     []Message
	historySize int
	pollEvery   time.Duration
}

// Option tunes bus construction.
type Option func(*Bus)

// WithHistorySize caps retained message history (default 500).
func WithHistorySize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historySize = n
		}
	}
}

// WithPollInterval sets how often Request re-polls history for a
// correlated response (default 50ms). Tests shorten this.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.pollEvery = d
		}
	}
}

// New creates a message bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:        make(map[string][]subscriber),
		queued:      make(map[string][]Message),
		historySize: 500,
		pollEvery:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for the given recipient. Any messages
// queued for that recipient before registration are flushed to the
// handler immediately, in publish order. Returns an unsubscribe func.
func (b *Bus) Subscribe(recipientID string, handler Handler) func() {
	b.mu.Lock()
	b.nextSubID++
	subID := b.nextSubID
	b.subs[recipientID] = append(b.subs[recipientID], subscriber{id: subID, handler: handler})
	backlog := b.queued[recipientID]
	delete(b.queued, recipientID)
	b.mu.Unlock()

	// Flush outside the lock: handlers may publish back onto the bus.
	for _, msg := range backlog {
		handler(msg)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[recipientID]
		for i, s := range subs {
			if s.id == subID {
				b.subs[recipientID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[recipientID]) == 0 {
			delete(b.subs, recipientID)
		}
	}
}

// Publish stamps the message with an ID and timestamp, appends it to the
// capped history, and delivers it synchronously. Broadcast messages go to
// every current subscriber; point-to-point messages go to the recipient's
// handlers if any are registered, otherwise they are queued for delivery
// upon that recipient's future subscription.
//
// Ordering: messages to a single recipient are delivered in publish
// order. Broadcasts are ordered only relative to each other.
func (b *Bus) Publish(msg Message) Message {
	b.mu.Lock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Timestamp = time.Now()
	msg.Acknowledged = false

	b.history = append(b.history, msg)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}

	var targets []Handler
	if msg.To == Broadcast {
		for _, subs := range b.subs {
			for _, s := range subs {
				targets = append(targets, s.handler)
			}
		}
	} else if subs, ok := b.subs[msg.To]; ok {
		for _, s := range subs {
			targets = append(targets, s.handler)
		}
	} else {
		b.queued[msg.To] = append(b.queued[msg.To], msg)
	}
	b.mu.Unlock()

	for _, h := range targets {
		h(msg)
	}

	return msg
}

// Acknowledge marks a message as consumed so a pod does not re-process
// the same instruction across polling ticks. Unknown IDs are a no-op.
func (b *Bus) Acknowledge(messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.history {
		if b.history[i].ID == messageID {
			b.history[i].Acknowledged = true
			return
		}
	}
}

// Request publishes a request from one pod to another and polls history
// for a correlated response until found or the timeout elapses. A timeout
// is a retryable soft failure: the returned message is nil and the error
// is nil, so callers must treat "no reply" explicitly, never as a crash.
func (b *Bus) Request(ctx context.Context, fromID, toID, payload string, timeout time.Duration) *Message {
	req := b.Publish(Message{
		From:     fromID,
		To:       toID,
		Type:     TypeRequest,
		Payload:  payload,
		Priority: PriorityNormal,
	})

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(b.pollEvery)
	defer ticker.Stop()

	for {
		if resp := b.findResponse(req.ID, fromID); resp != nil {
			return resp
		}
		if time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// findResponse scans history for an unacknowledged response correlated to
// the request, addressed to the requester.
func (b *Bus) findResponse(requestID, requesterID string) *Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.history {
		m := b.history[i]
		if m.Type == TypeResponse && m.CorrelationID == requestID && m.To == requesterID {
			b.history[i].Acknowledged = true
			cp := b.history[i]
			return &cp
		}
	}
	return nil
}

// Respond publishes a response correlated to the given request.
func (b *Bus) Respond(req Message, fromID, payload string) Message {
	return b.Publish(Message{
		From:          fromID,
		To:            req.From,
		Type:          TypeResponse,
		Payload:       payload,
		CorrelationID: req.ID,
		Priority:      req.Priority,
	})
}

// History returns a copy of the retained message history, oldest first.
func (b *Bus) History() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Message(nil), b.history...)
}

// Pending returns unacknowledged messages addressed to the recipient.
func (b *Bus) Pending(recipientID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	for _, m := range b.history {
		if m.To == recipientID && !m.Acknowledged {
			out = append(out, m)
		}
	}
	return out
}
