package stats

import "sync"

// Hub fans out statistics snapshots to live dashboard subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Snapshot]struct{}
	last        Snapshot
	hasLast     bool
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Snapshot]struct{})}
}

// Subscribe registers a listener. The latest snapshot, if any, is delivered
// immediately. The returned cancel func must be called exactly once.
func (h *Hub) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	if h.hasLast {
		ch <- h.last
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers a snapshot to every subscriber without blocking: when a
// subscriber's buffer is full the stale snapshot is dropped in favor of the
// new one.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = snap
	h.hasLast = true
	for ch := range h.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
