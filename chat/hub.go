package chat

import (
	"log/slog"
	"sync"

	"github.com/onnwee/chat-relay/telemetry"
)

// Hub is the in-process fan-out point between the single fetcher and any number
// of subscribers. Each subscription owns a bounded delivery channel; Publish
// never blocks. When a subscription's buffer is full the subscription is
// dropped (treated as disconnected) so a stalled consumer can neither slow the
// fetcher nor starve other consumers.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

// Subscription is one live registration with the Hub. It has no persistent
// identity: a reconnecting client registers anew and sees only messages
// published after registration.
type Subscription struct {
	hub    *Hub
	ch     chan Message
	closed bool // guarded by hub.mu
}

// NewHub creates a Hub whose subscriptions buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a new consumer and returns its subscription handle.
// The caller must Close it when done.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan Message, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	// The gauge is set under mu so concurrent registrations cannot publish a
	// stale count.
	telemetry.SetSubscribers(len(h.subs))
	h.mu.Unlock()
	return s
}

// Publish delivers a copy of msg to every registered subscription. It never
// blocks and never fails; subscriptions whose buffer is full are dropped.
func (h *Hub) Publish(msg Message) {
	var dropped []*Subscription
	h.mu.Lock()
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			dropped = append(dropped, s)
		}
	}
	for _, s := range dropped {
		h.removeLocked(s)
	}
	if len(dropped) > 0 {
		telemetry.SetSubscribers(len(h.subs))
	}
	h.mu.Unlock()
	if len(dropped) > 0 {
		telemetry.AddSubscribersDropped(len(dropped))
		slog.Warn("dropped slow chat subscribers", slog.Int("count", len(dropped)))
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// removeLocked unregisters and closes s. Callers hold h.mu.
func (h *Hub) removeLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs, s)
	close(s.ch)
}

// Events returns the subscription's delivery channel. The channel is closed
// when the subscription ends, either by Close or by the overflow policy.
func (s *Subscription) Events() <-chan Message { return s.ch }

// Close unregisters the subscription. It is idempotent and safe to call
// concurrently with Publish.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	s.hub.removeLocked(s)
	telemetry.SetSubscribers(len(s.hub.subs))
	s.hub.mu.Unlock()
}
