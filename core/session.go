package core

import (
	"sync"
	"time"
)

// Session is a conversation thread: the ordered message history the runtime
// replays to models on every turn. It is safe for concurrent access.
//
// Contract:
//   - Append updates the Updated timestamp
//   - History returns a defensive copy to avoid external mutation
//   - Clone performs a deep copy of the message slice for safe divergence.
type Session struct {
	ID       string    `json:"id"`
	Messages []Content `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	mu       sync.RWMutex
}

// NewSession creates a new empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, Messages: []Content{}, Created: now, Updated: now}
}

// Append adds messages to the history updating the Updated timestamp.
func (s *Session) Append(contents ...Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, contents...)
	s.Updated = time.Now()
}

// History returns a defensive copy of the message history.
func (s *Session) History() []Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Content, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Len returns the number of messages in the thread.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Messages)
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, Messages: make([]Content, len(s.Messages)), Created: s.Created, Updated: s.Updated}
	copy(clone.Messages, s.Messages)
	return clone
}

// SessionStore persists conversation threads.
type SessionStore interface {
	// Get returns the thread, creating an empty one lazily.
	Get(id string) (*Session, error)
	// Append adds messages to the thread, creating it if needed.
	Append(id string, contents ...Content) error
	// Delete removes the thread. Deleting an unknown id is not an error.
	Delete(id string) error
}
