// internal/session/registry.go
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUsernameTaken is returned by Claim on an exact-match collision.
var ErrUsernameTaken = errors.New("username already exists")

// Registry owns the connection map and the presence set. All access goes
// through its methods; the mutex is held only for the critical section and
// never across anything that can block.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	names    map[string]uuid.UUID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		names:    make(map[string]uuid.UUID),
	}
}

// Register records a freshly accepted connection.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Claim binds a username to a session. It fails without mutating anything if
// the name is already held by a live session.
func (r *Registry) Claim(sessionID uuid.UUID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.names[name]; taken {
		return ErrUsernameTaken
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return errors.New("no such session")
	}
	s.Username = name
	r.names[name] = sessionID
	return nil
}

// Release removes a session and frees its username. Callers must run lobby
// cleanup first: after Release the session's state is gone. Releasing an
// unknown id is a no-op, so disconnect paths may call it more than once.
func (r *Registry) Release(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if s.Username != "" {
		delete(r.names, s.Username)
	}
	delete(r.sessions, sessionID)
}

// Get returns the session for an id.
func (r *Registry) Get(sessionID uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// FindByUsername resolves a live session holding the given name.
func (r *Registry) FindByUsername(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.names[name]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Online reports whether some live session holds the name.
func (r *Registry) Online(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	return ok
}

// SetLobby re-points a session's current lobby.
func (r *Registry) SetLobby(sessionID, lobbyID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.LobbyID = lobbyID
	}
}

// BeginCleanup claims the one-shot right to run disconnect cleanup for a
// session. It returns the claimed username, and false if the session is
// unknown, never subscribed, or already being cleaned up.
func (r *Registry) BeginCleanup(sessionID uuid.UUID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.cleanedUp || s.Username == "" {
		return "", false
	}
	s.cleanedUp = true
	return s.Username, true
}

// CurrentLobby resolves a username to its session and current lobby id in
// one critical section.
func (r *Registry) CurrentLobby(name string) (*Session, uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.names[name]
	if !ok {
		return nil, uuid.Nil, false
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, uuid.Nil, false
	}
	return s, s.LobbyID, true
}

// Snapshot returns the current sessions as a slice so callers can iterate
// without holding the registry lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// PresenceCount returns the number of claimed usernames.
func (r *Registry) PresenceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}
