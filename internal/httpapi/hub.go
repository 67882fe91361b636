package httpapi

import (
	"context"
	"strings"
	"sync"

	"github.com/egv/autotask/internal/contracts"
)

const subscriberBuffer = 32

// Hub fans events out to websocket subscribers. A slow subscriber loses its
// oldest queued event rather than blocking the emitter.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
	closed      bool
}

var _ contracts.EventSink = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan []byte]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; the channel is closed afterwards.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) Emit(_ context.Context, event contracts.Event) error {
	line, err := contracts.MarshalEventJSONL(event)
	if err != nil {
		return err
	}
	payload := []byte(strings.TrimSuffix(line, "\n"))

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		pushPayload(ch, payload)
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func pushPayload(ch chan []byte, payload []byte) {
	select {
	case ch <- payload:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- payload:
	default:
	}
}
