package chat

// Store is the append-only log of accepted messages, in arrival order.
// It grows for the lifetime of a session.
type Store struct {
	messages []ChatMessage
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// Append adds msg at the end of the log.
func (s *Store) Append(msg ChatMessage) { s.messages = append(s.messages, msg) }

// All returns a copy of every message in append order.
func (s *Store) All() []ChatMessage {
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int { return len(s.messages) }
