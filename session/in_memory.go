package session

import (
	"sync"

	"github.com/hupe1980/captain/core"
)

// InMemoryStore is a volatile SessionStore implementation storing
// threads in a process local map. It is safe for concurrent access. Each
// returned session is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Get returns an existing thread (clone) or creates a new one lazily.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id).Clone(), nil
}

// Append adds messages to an existing or newly created thread.
func (s *InMemoryStore) Append(id string, contents ...core.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(id).Append(contents...)
	return nil
}

// Delete drops the thread.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// getLocked returns the stored thread, allocating it on first use; caller
// must hold the lock.
func (s *InMemoryStore) getLocked(id string) *core.Session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = core.NewSession(id)
		s.sessions[id] = sess
	}
	return sess
}
