package notify

import (
	"context"
	"sync"
)

const defaultSubscriberBuffer = 64

// Hub is an in-memory fan-out Notifier. Subscribers receive every published
// event on a buffered channel; events are dropped for subscribers that fall
// behind so a slow consumer can never block webhook processing.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription is one consumer's event stream.
type Subscription struct {
	hub *Hub
	ch  chan Event
}

// Events returns the receive channel. It is closed when the subscription or
// the hub is closed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Subscribe registers a new consumer. The subscription is detached when ctx
// is cancelled.
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	sub := &Subscription{hub: h, ch: make(chan Event, defaultSubscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub
}

// Notify publishes an event to all subscribers without blocking.
func (h *Hub) Notify(ctx context.Context, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			// Subscriber buffer full: drop rather than block the pipeline.
		}
	}
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
