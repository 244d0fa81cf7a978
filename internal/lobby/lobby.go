// internal/lobby/lobby.go
package lobby

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// MaxSeats is the lobby capacity; seat numbers run [1, MaxSeats].
const MaxSeats = 10

// SeatNone is the sentinel assigned when every real seat is taken. It is
// never a member of FilledSeats, so a full lobby accepts the join without a
// seat rather than failing it.
const SeatNone = 0

var (
	ErrSeatTaken   = errors.New("seat already occupied")
	ErrNotMember   = errors.New("player is not in this lobby")
	ErrLobbyClosed = errors.New("lobby has been destroyed")
)

// State is the lobby lifecycle phase.
type State int

const (
	// Forming: the leader is alone.
	Forming State = iota
	// Active: at least one other member has joined.
	Active
	// Destroyed: removed from the store; all operations are rejected.
	Destroyed
)

// PlayerSlot is one occupied position in a lobby. Owned by exactly one lobby.
type PlayerSlot struct {
	Username string `json:"userName"`
	Seat     int    `json:"seat"`
	Ready    bool   `json:"ready"`
	Ping     int    `json:"ping"`
}

// Lobby is a named group of players with one leader, numbered seats, and a
// shared match configuration.
//
// Invariants: Leader is empty or a key of Players; FilledSeats is exactly the
// set of seats in use; no two players share a seat.
//
// Mu guards every field. Methods ending in Unsafe assume the caller holds Mu;
// the lock must never be held across an external call.
type Lobby struct {
	ID          uuid.UUID
	Leader      string
	MatchType   string
	MapID       string
	Players     map[string]*PlayerSlot
	FilledSeats map[int]bool

	Mu    sync.Mutex
	state State

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a lobby with the given player as leader in the first seat.
func New(leader string) *Lobby {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Lobby{
		ID:          uuid.New(),
		Leader:      leader,
		Players:     make(map[string]*PlayerSlot),
		FilledSeats: make(map[int]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
	l.Players[leader] = &PlayerSlot{Username: leader, Seat: 1}
	l.FilledSeats[1] = true
	return l
}

// Rehydrate rebuilds a lobby from a mirrored row. Seats are reassigned in
// slice order since seat numbers are not mirrored; the leader is seated first
// even if the row omits it from players.
func Rehydrate(id uuid.UUID, leader string, players []string) *Lobby {
	l := New(leader)
	l.ID = id
	for _, name := range players {
		if name == leader {
			continue
		}
		l.AddPlayerUnsafe(name)
	}
	return l
}

// Context is cancelled when the lobby is destroyed. Long-running workflows
// (matchmaking in particular) derive their lifetime from it.
func (l *Lobby) Context() context.Context {
	return l.ctx
}

// StateUnsafe derives the lifecycle phase. Assumes Mu is held.
func (l *Lobby) StateUnsafe() State {
	if l.state == Destroyed {
		return Destroyed
	}
	if len(l.Players) > 1 {
		return Active
	}
	return Forming
}

// DestroyUnsafe marks the lobby dead and cancels its context. Assumes Mu is
// held. Idempotent.
func (l *Lobby) DestroyUnsafe() {
	if l.state == Destroyed {
		return
	}
	l.state = Destroyed
	l.cancel()
}

// lowestFreeSeatUnsafe scans [1, MaxSeats] and returns the first unfilled
// seat, or SeatNone when the lobby is full. Assumes Mu is held.
func (l *Lobby) lowestFreeSeatUnsafe() int {
	for seat := 1; seat <= MaxSeats; seat++ {
		if !l.FilledSeats[seat] {
			return seat
		}
	}
	return SeatNone
}

// AddPlayerUnsafe seats a new player in the lowest free seat. Assumes Mu is
// held. Joining a destroyed lobby fails.
func (l *Lobby) AddPlayerUnsafe(name string) (*PlayerSlot, error) {
	if l.state == Destroyed {
		return nil, ErrLobbyClosed
	}
	if slot, ok := l.Players[name]; ok {
		return slot, nil
	}
	seat := l.lowestFreeSeatUnsafe()
	slot := &PlayerSlot{Username: name, Seat: seat}
	l.Players[name] = slot
	if seat != SeatNone {
		l.FilledSeats[seat] = true
	}
	return slot, nil
}

// RemovePlayerUnsafe drops a player and frees their seat. Assumes Mu is held.
// Removing an absent player is a no-op so teardown paths stay idempotent.
func (l *Lobby) RemovePlayerUnsafe(name string) {
	slot, ok := l.Players[name]
	if !ok {
		return
	}
	if slot.Seat != SeatNone {
		delete(l.FilledSeats, slot.Seat)
	}
	delete(l.Players, name)
}

// MoveSeatUnsafe relocates a player to a requested seat. Assumes Mu is held.
// The move is rejected without mutation if another player occupies the seat
// or the seat is out of range.
func (l *Lobby) MoveSeatUnsafe(name string, seat int) error {
	slot, ok := l.Players[name]
	if !ok {
		return ErrNotMember
	}
	if seat == slot.Seat {
		return nil
	}
	if seat < 1 || seat > MaxSeats {
		return ErrSeatTaken
	}
	if l.FilledSeats[seat] {
		return ErrSeatTaken
	}
	if slot.Seat != SeatNone {
		delete(l.FilledSeats, slot.Seat)
	}
	slot.Seat = seat
	l.FilledSeats[seat] = true
	return nil
}

// SeatHoldersUnsafe lists usernames of players holding a real seat, the set a
// matchmaking ticket covers. Assumes Mu is held.
func (l *Lobby) SeatHoldersUnsafe() []string {
	names := make([]string, 0, len(l.Players))
	for name, slot := range l.Players {
		if slot.Seat != SeatNone {
			names = append(names, name)
		}
	}
	return names
}

// Snapshot is a copy of lobby state safe to hand across goroutines.
type Snapshot struct {
	ID        uuid.UUID
	Leader    string
	MatchType string
	MapID     string
	Players   []PlayerSlot
}

// SnapshotUnsafe copies the current state. Assumes Mu is held.
func (l *Lobby) SnapshotUnsafe() Snapshot {
	snap := Snapshot{
		ID:        l.ID,
		Leader:    l.Leader,
		MatchType: l.MatchType,
		MapID:     l.MapID,
		Players:   make([]PlayerSlot, 0, len(l.Players)),
	}
	for _, slot := range l.Players {
		snap.Players = append(snap.Players, *slot)
	}
	return snap
}

// Snapshot locks and copies the current state.
func (l *Lobby) Snapshot() Snapshot {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.SnapshotUnsafe()
}
