// internal/session/session.go
package session

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Session is the server-side record of one live client connection. It is
// created when the websocket is accepted and destroyed on disconnect.
// Username stays empty until a successful SUBSCRIBE; LobbyID tracks the lobby
// the session currently occupies.
type Session struct {
	ID       uuid.UUID
	Username string
	LobbyID  uuid.UUID

	// Out feeds the connection's write pump. Writes are non-blocking; a full
	// or abandoned channel drops the message rather than stalling the sender.
	Out    chan any
	Cancel context.CancelFunc

	// cleanedUp is set once disconnect cleanup has run, making a second
	// invocation a no-op. Guarded by the registry mutex.
	cleanedUp bool
}

// New builds a session with a fresh id and a buffered outbound channel.
func New(cancel context.CancelFunc) *Session {
	return &Session{
		ID:     uuid.New(),
		Out:    make(chan any, 16),
		Cancel: cancel,
	}
}

// Write pushes a message onto the session's outbound channel without blocking.
// Delivery is fire-and-forget: a closed or saturated channel drops the message.
func (s *Session) Write(msg any) {
	select {
	case s.Out <- msg:
	default:
		log.Warnf("session %s: outbound channel full or closed, dropping message", s.ID)
	}
}
