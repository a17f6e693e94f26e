package session

import (
	"sync"

	"github.com/onnwee/chat-panels/chat"
)

// UpdateKind tags an Update.
type UpdateKind string

const (
	// UpdateMessage carries one newly accepted message.
	UpdateMessage UpdateKind = "message"
	// UpdateView signals a wholesale change (layout, style, session start or stop).
	UpdateView UpdateKind = "view"
)

// Update is broadcast to subscribers after the render model changes.
type Update struct {
	Kind      UpdateKind        `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Version   uint64            `json:"version"`
	Message   *chat.ChatMessage `json:"message,omitempty"`
}

// Hub fans updates out to subscribers. A subscriber whose buffer is full
// misses updates; Publish never blocks.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Update
}

func NewHub() *Hub { return &Hub{subs: make(map[int]chan Update)} }

// Subscribe registers a subscriber with a buffer of size buf. The returned
// func unsubscribes and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buf int) (<-chan Update, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Update, buf)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers u to every subscriber with room for it.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Len is the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
