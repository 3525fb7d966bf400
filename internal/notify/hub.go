// Package notify fans progression events out to subscribers, typically
// websocket sessions. Publishing never blocks; a subscriber that falls
// behind its buffer loses events rather than stalling the publisher.
package notify

import (
	"log/slog"
	"sync"

	"github.com/codequest/quest-engine/internal/models"
)

const subscriberBuffer = 16

// Hub is a non-blocking event fan-out.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan models.ProgressionEvent]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan models.ProgressionEvent]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel function
// must be called exactly once; it closes the channel.
func (h *Hub) Subscribe() (<-chan models.ProgressionEvent, func()) {
	ch := make(chan models.ProgressionEvent, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer space.
func (h *Hub) Publish(ev models.ProgressionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("dropping event for slow subscriber", "player_id", ev.PlayerID)
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
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
