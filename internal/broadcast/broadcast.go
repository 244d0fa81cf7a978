// internal/broadcast/broadcast.go
package broadcast

import (
	"github.com/arcadehalls/relay/internal/lobby"
	"github.com/arcadehalls/relay/internal/session"
)

// SystemSender is the exclusion marker used when a broadcast should reach
// every member, including the player whose action triggered it. No real
// username ever matches it.
const SystemSender = "@system"

// Engine fans messages out to live sessions. Delivery is fire-and-forget: a
// closed or saturated connection is silently skipped, never retried.
type Engine struct {
	sessions *session.Registry
}

// NewEngine builds an engine over the given registry.
func NewEngine(reg *session.Registry) *Engine {
	return &Engine{sessions: reg}
}

// Global sends msg to every session with a claimed username other than
// exclude. Sessions that never subscribed are skipped.
func (e *Engine) Global(msg any, exclude string) {
	for _, s := range e.sessions.Snapshot() {
		if s.Username == "" || s.Username == exclude {
			continue
		}
		s.Write(msg)
	}
}

// ToUser delivers msg to the single session holding username. The boolean
// reports whether the target was online; callers owe the sender an explicit
// offline notice when it is false.
func (e *Engine) ToUser(username string, msg any) bool {
	s, ok := e.sessions.FindByUsername(username)
	if !ok {
		return false
	}
	s.Write(msg)
	return true
}

// LobbyUnsafe sends msg to every session whose username is currently a key of
// the lobby's player map, except exclude. Assumes the lobby lock is held, so
// membership is read at send time and a recently evicted player can never
// receive a stale broadcast.
func (e *Engine) LobbyUnsafe(msg any, l *lobby.Lobby, exclude string) {
	for name := range l.Players {
		if name == exclude {
			continue
		}
		if s, ok := e.sessions.FindByUsername(name); ok {
			s.Write(msg)
		}
	}
}

// Lobby locks the lobby and sends msg to its members except exclude.
func (e *Engine) Lobby(msg any, l *lobby.Lobby, exclude string) {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	e.LobbyUnsafe(msg, l, exclude)
}
