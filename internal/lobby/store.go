// internal/lobby/store.go
package lobby

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Store manages the active lobbies in memory. It provides thread-safe access
// to add, retrieve, and delete lobbies; it never hands out the raw map.
type Store struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*Lobby
}

// NewStore initializes and returns an empty Store.
func NewStore() *Store {
	return &Store{lobbies: make(map[uuid.UUID]*Lobby)}
}

// Add places a lobby in the store. Adding an id twice is ignored.
func (s *Store) Add(l *Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lobbies[l.ID]; exists {
		log.Warnf("lobby store: lobby %s already exists, not overwriting", l.ID)
		return
	}
	s.lobbies[l.ID] = l
}

// Get retrieves a lobby by id.
func (s *Store) Get(id uuid.UUID) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	return l, ok
}

// Delete removes a lobby from the store and marks it Destroyed, cancelling
// any workflow bound to its context. Deleting an unknown id is a no-op.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	l, ok := s.lobbies[id]
	if ok {
		delete(s.lobbies, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	l.Mu.Lock()
	l.DestroyUnsafe()
	l.Mu.Unlock()
}

// List returns the current lobbies as a slice so callers can iterate without
// holding the store lock.
func (s *Store) List() []*Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, l)
	}
	return out
}

// Len reports the number of live lobbies.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}
