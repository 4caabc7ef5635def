package realtime

import (
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 16

// Hub fans bus events out to in-process SSE subscribers. Slow consumers
// drop events rather than stall the forwarder; the document list endpoint
// is the source of truth, the stream is advisory.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan StatusEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan StatusEvent]struct{})}
}

func (h *Hub) Subscribe(userID uuid.UUID) (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan StatusEvent]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) Publish(evt StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[evt.OwnerUserID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
