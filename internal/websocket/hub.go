package websocket

import (
	"sync"
)

// subscriberBuffer bounds how far a slow connection may fall behind before
// messages to it are dropped.
const subscriberBuffer = 64

// Subscription receives the messages published for one student.
type Subscription struct {
	C         <-chan any
	ch        chan any
	studentID string
}

// Hub fans messages out to every connection of a student. Publish never
// blocks: a full subscriber misses the message.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a new connection for studentID.
func (h *Hub) Subscribe(studentID string) *Subscription {
	ch := make(chan any, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, studentID: studentID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[studentID] == nil {
		h.subs[studentID] = make(map[*Subscription]struct{})
	}
	h.subs[studentID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.studentID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, sub.studentID)
	}
}

// Publish delivers msg to every subscriber of studentID and returns how many
// received it.
func (h *Hub) Publish(studentID string, msg any) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[studentID] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of open connections of studentID.
func (h *Hub) Subscribers(studentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[studentID])
}
