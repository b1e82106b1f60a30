package server

import (
	"log/slog"
	"sync"

	"github.com/sotto-voice/sotto/internal/pipeline"
)

// subscriberBuffer is the per-subscriber event backlog. A consumer that
// falls further behind than this starts losing events — the pipeline is
// never blocked by a slow websocket peer.
const subscriberBuffer = 64

// Compile-time assertion that Hub implements pipeline.Sink.
var _ pipeline.Sink = (*Hub)(nil)

// Hub fans pipeline events out to websocket subscribers. Publish never
// blocks: each subscriber has a bounded buffer and silently drops its oldest
// unread events when full.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// Subscriber is one attached event consumer.
type Subscriber struct {
	ch      chan pipeline.Event
	dropped int
}

// Events returns the subscriber's event channel. It is closed on
// Unsubscribe.
func (s *Subscriber) Events() <-chan pipeline.Event { return s.ch }

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Publish delivers e to every subscriber, dropping the subscriber's oldest
// buffered event when its buffer is full.
func (h *Hub) Publish(e pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- e:
			continue
		default:
		}
		// Buffer full: evict the oldest, then deliver.
		select {
		case <-sub.ch:
			sub.dropped++
			if sub.dropped%100 == 1 {
				slog.Warn("event subscriber lagging, dropping events", "dropped", sub.dropped)
			}
		default:
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Subscribe attaches a new consumer.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan pipeline.Event, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe detaches sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Len returns the number of attached subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
