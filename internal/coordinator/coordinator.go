// internal/coordinator/coordinator.go
package coordinator

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arcadehalls/relay/internal/broadcast"
	"github.com/arcadehalls/relay/internal/cache"
	"github.com/arcadehalls/relay/internal/database"
	"github.com/arcadehalls/relay/internal/lobby"
	"github.com/arcadehalls/relay/internal/protocol"
	"github.com/arcadehalls/relay/internal/session"
)

// Coordinator owns the lobby lifecycle: subscribe, invite, join, update,
// exit, leader succession, and disconnect cleanup. Per-lobby serialization
// comes from each lobby's mutex; the mutex is never held across the mirror,
// the event queue, or any other external call.
type Coordinator struct {
	Sessions *session.Registry
	Lobbies  *lobby.Store
	Cast     *broadcast.Engine
	Mirror   *database.Mirror
	Events   *cache.Publisher
	Log      *logrus.Logger
}

// New wires a coordinator over the shared stores.
func New(reg *session.Registry, store *lobby.Store, cast *broadcast.Engine,
	mirror *database.Mirror, events *cache.Publisher, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		Sessions: reg,
		Lobbies:  store,
		Cast:     cast,
		Mirror:   mirror,
		Events:   events,
		Log:      logger,
	}
}

// stateOf flattens a snapshot into the wire envelope, players ordered by seat
// (sentinel-seated players last) so broadcasts are deterministic.
func stateOf(snap lobby.Snapshot) protocol.LobbyState {
	players := make([]protocol.LobbyPlayer, 0, len(snap.Players))
	for _, slot := range snap.Players {
		players = append(players, protocol.LobbyPlayer{
			UserName: slot.Username,
			Seat:     slot.Seat,
			Ready:    slot.Ready,
			Ping:     slot.Ping,
		})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Seat == lobby.SeatNone {
			return false
		}
		if players[j].Seat == lobby.SeatNone {
			return true
		}
		return players[i].Seat < players[j].Seat
	})
	return protocol.LobbyState{
		Type:      protocol.TypeLobbyState,
		LobbyID:   snap.ID.String(),
		Leader:    snap.Leader,
		MatchType: snap.MatchType,
		MapID:     snap.MapID,
		Players:   players,
	}
}

// createSoloLobby builds a one-member lobby led by username, registers it,
// re-points the session, and mirrors the creation. Returns the new lobby.
func (c *Coordinator) createSoloLobby(ctx context.Context, sess *session.Session, username string) *lobby.Lobby {
	l := lobby.New(username)
	c.Lobbies.Add(l)
	c.Sessions.SetLobby(sess.ID, l.ID)
	c.Mirror.AddLobby(ctx, l.ID, username, []string{username})
	c.Events.Publish(ctx, cache.Event{Type: cache.EventLobbyCreated, LobbyID: l.ID.String(), Username: username})
	return l
}

// Subscribe claims a username, creates the solo lobby, and announces
// presence. A duplicate name is rejected without creating any state for the
// attempt.
func (c *Coordinator) Subscribe(ctx context.Context, sess *session.Session, username string) {
	if username == "" {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "userName is required"})
		return
	}
	if err := c.Sessions.Claim(sess.ID, username); err != nil {
		sess.Write(protocol.Notice{
			Type:    protocol.TypeNotice,
			Message: "Username already exist please choose a different username",
		})
		return
	}

	l := c.createSoloLobby(ctx, sess, username)
	c.Mirror.AddPlayer(ctx, sess.ID, username, "")
	c.Events.Publish(ctx, cache.Event{Type: cache.EventPlayerSubscribed, Username: username})

	sess.Write(protocol.Subscribed{
		Type:     protocol.TypeSubscribed,
		UserName: username,
		LobbyID:  l.ID.String(),
	})
	c.Cast.Global(protocol.Presence{Type: protocol.TypePlayerJoined, UserName: username}, username)
	c.Log.Infof("player %s subscribed, solo lobby %s", username, l.ID)
}

// DirectMessage relays a MESSAGE to its target, or returns an offline notice
// to the sender.
func (c *Coordinator) DirectMessage(sess *session.Session, from, to, message string) {
	relay := protocol.DirectMessage{Type: protocol.TypeMessage, From: from, To: to, Message: message}
	if !c.Cast.ToUser(to, relay) {
		sess.Write(protocol.Notice{Type: protocol.TypeNotice, Message: "No user with username " + to + " exist"})
	}
}

// Invite relays a lobby invitation. Only a current lobby leader may invite;
// an offline target yields an explicit notice, never a silent drop.
func (c *Coordinator) Invite(sess *session.Session, from, to string) {
	_, lobbyID, ok := c.Sessions.CurrentLobby(from)
	if !ok || lobbyID == uuid.Nil {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "you are not in a lobby"})
		return
	}
	l, ok := c.Lobbies.Get(lobbyID)
	if !ok {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "your lobby no longer exists"})
		return
	}

	l.Mu.Lock()
	isLeader := l.Leader == from
	l.Mu.Unlock()
	if !isLeader {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "only the lobby leader can invite"})
		return
	}

	invite := protocol.LobbyInvite{Type: protocol.TypeLobbyInvite, From: from, LobbyID: lobbyID.String()}
	if !c.Cast.ToUser(to, invite) {
		sess.Write(protocol.Notice{Type: protocol.TypeNotice, Message: "No user with username " + to + " exist"})
		return
	}
	sess.Write(protocol.Notice{Type: protocol.TypeNotice, Message: "invite sent to " + to})
}

// RespondInvite relays the accept/decline back to the inviter and, on ACCEPT,
// runs the join workflow for the responder.
func (c *Coordinator) RespondInvite(ctx context.Context, sess *session.Session, msg protocol.Inbound) {
	reply := protocol.InviteResponse{
		Type:     protocol.TypeLobbyRequestResponse,
		From:     msg.From,
		LobbyID:  msg.LobbyID,
		Response: msg.Response,
	}
	if !c.Cast.ToUser(msg.To, reply) {
		sess.Write(protocol.Notice{Type: protocol.TypeNotice, Message: "No user with username " + msg.To + " exist"})
	}
	if msg.Response != protocol.ResponseAccept {
		return
	}

	targetID, err := uuid.Parse(msg.LobbyID)
	if err != nil {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "invalid lobbyId"})
		return
	}
	c.AcceptInvite(ctx, sess, msg.From, targetID)
}

// AcceptInvite moves the accepter out of their current lobby (applying the
// leader-departure rule if they led it) and seats them in the target lobby at
// the lowest free seat. The resulting state is broadcast to every member,
// accepter included.
func (c *Coordinator) AcceptInvite(ctx context.Context, sess *session.Session, accepter string, targetID uuid.UUID) {
	target, ok := c.Lobbies.Get(targetID)
	if !ok {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "lobby does not exist"})
		return
	}

	// Fully leave the old lobby first; lobby locks are never nested.
	c.leaveCurrentLobby(ctx, accepter, false)

	target.Mu.Lock()
	_, err := target.AddPlayerUnsafe(accepter)
	if err != nil {
		target.Mu.Unlock()
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "lobby does not exist"})
		return
	}
	snap := target.SnapshotUnsafe()
	c.Cast.LobbyUnsafe(stateOf(snap), target, broadcast.SystemSender)
	target.Mu.Unlock()

	c.Sessions.SetLobby(sess.ID, targetID)
	c.Mirror.AddPlayerToLobby(ctx, targetID, accepter)
	c.Log.Infof("player %s joined lobby %s", accepter, targetID)
}

// LobbyMessage relays a lobby-scoped chat message to every other member.
func (c *Coordinator) LobbyMessage(sess *session.Session, msg protocol.Inbound) {
	l, ok := c.lobbyByString(msg.LobbyID)
	if !ok {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "lobby does not exist"})
		return
	}
	relay := protocol.LobbyMessage{
		Type:    protocol.TypeLobbyMessage,
		LobbyID: msg.LobbyID,
		From:    msg.From,
		Message: msg.Message,
	}
	c.Cast.Lobby(relay, l, msg.From)
}

// Update applies a LOBBY_UPDATE as one atomic transition. Seat conflicts and
// leader-only violations reject the whole update; the caller alone hears
// about the rejection, receiving the prior unmodified state.
func (c *Coordinator) Update(sess *session.Session, msg protocol.Inbound) {
	l, ok := c.lobbyByString(msg.LobbyID)
	if !ok {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "lobby does not exist"})
		return
	}
	data := msg.Data
	if data == nil {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "update has no data"})
		return
	}

	l.Mu.Lock()
	slot, member := l.Players[msg.From]
	if !member {
		prior := l.SnapshotUnsafe()
		l.Mu.Unlock()
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "you are not in that lobby"})
		sess.Write(stateOf(prior))
		return
	}

	// Validate everything before mutating anything.
	if data.Seat != nil && *data.Seat != slot.Seat {
		if *data.Seat < 1 || *data.Seat > lobby.MaxSeats || l.FilledSeats[*data.Seat] {
			prior := l.SnapshotUnsafe()
			l.Mu.Unlock()
			sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "seat already occupied"})
			sess.Write(stateOf(prior))
			return
		}
	}
	if (data.MatchType != nil || data.MapID != nil) && l.Leader != msg.From {
		prior := l.SnapshotUnsafe()
		l.Mu.Unlock()
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "only the lobby leader can change match settings"})
		sess.Write(stateOf(prior))
		return
	}

	// Apply all accepted fields as one transition.
	if data.Seat != nil {
		if err := l.MoveSeatUnsafe(msg.From, *data.Seat); err != nil {
			prior := l.SnapshotUnsafe()
			l.Mu.Unlock()
			sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: err.Error()})
			sess.Write(stateOf(prior))
			return
		}
	}
	if data.Ready != nil {
		slot.Ready = *data.Ready
	}
	if data.Ping != nil {
		slot.Ping = *data.Ping
	}
	if data.MatchType != nil {
		l.MatchType = *data.MatchType
	}
	if data.MapID != nil {
		l.MapID = *data.MapID
	}
	snap := l.SnapshotUnsafe()
	c.Cast.LobbyUnsafe(stateOf(snap), l, broadcast.SystemSender)
	l.Mu.Unlock()
}

// Exit runs the leave/succession workflow for a deliberate EXIT_LOBBY. A
// non-leader departer is re-homed into a fresh solo lobby; a departing leader
// ends up in no lobby at all.
func (c *Coordinator) Exit(ctx context.Context, username string) {
	c.leaveCurrentLobby(ctx, username, true)
}

// DisconnectCleanup is Exit triggered by transport closure. It is idempotent
// against a partially torn-down lobby and must run before the registry
// releases the session.
func (c *Coordinator) DisconnectCleanup(ctx context.Context, sessionID uuid.UUID) {
	username, ok := c.Sessions.BeginCleanup(sessionID)
	if !ok {
		return
	}
	c.leaveCurrentLobby(ctx, username, false)
	c.Mirror.DeletePlayer(ctx, sessionID)
	c.Cast.Global(protocol.Presence{Type: protocol.TypePlayerLeft, UserName: username}, username)
}

// leaveCurrentLobby removes username from whatever lobby it occupies.
//
// Leader departure: every other member is evicted into a brand-new
// single-member lobby of their own, a "lobby destroyed" notice precedes
// removal, and the vacated lobby is deleted. The departed leader is never
// re-homed; no lobby containing them survives. Non-leader departure: the
// remaining members get an updated state broadcast.
//
// With createSolo a non-leader departer is re-homed into a fresh solo lobby
// (the EXIT_LOBBY path); without it they are left lobby-less (join and
// disconnect paths).
func (c *Coordinator) leaveCurrentLobby(ctx context.Context, username string, createSolo bool) {
	sess, lobbyID, ok := c.Sessions.CurrentLobby(username)
	if !ok {
		return
	}

	l, exists := c.Lobbies.Get(lobbyID)
	if !exists {
		// Already torn down; just detach the session and optionally re-home.
		c.Sessions.SetLobby(sess.ID, uuid.Nil)
		if createSolo {
			solo := c.createSoloLobby(ctx, sess, username)
			sess.Write(stateOf(solo.Snapshot()))
		}
		return
	}

	l.Mu.Lock()
	if _, member := l.Players[username]; !member {
		l.Mu.Unlock()
		c.Sessions.SetLobby(sess.ID, uuid.Nil)
		if createSolo {
			solo := c.createSoloLobby(ctx, sess, username)
			sess.Write(stateOf(solo.Snapshot()))
		}
		return
	}

	if l.Leader == username {
		evicted := make([]string, 0, len(l.Players)-1)
		for name := range l.Players {
			if name != username {
				evicted = append(evicted, name)
			}
		}
		sort.Strings(evicted)
		// Destroy before releasing the lock so a join racing the teardown
		// fails with ErrLobbyClosed instead of seating into a lobby that is
		// about to vanish.
		l.DestroyUnsafe()
		notice := protocol.LobbyDestroyed{Type: protocol.TypeLobbyDestroyed, LobbyID: l.ID.String()}
		c.Cast.LobbyUnsafe(notice, l, broadcast.SystemSender)
		l.Mu.Unlock()

		c.Lobbies.Delete(l.ID)
		c.Mirror.DeleteLobby(ctx, l.ID)
		c.Events.Publish(ctx, cache.Event{Type: cache.EventLobbyDestroyed, LobbyID: l.ID.String(), Username: username})
		c.Sessions.SetLobby(sess.ID, uuid.Nil)

		// Each evicted member becomes sole leader of a new lobby. The
		// departed leader is not re-homed.
		for _, name := range evicted {
			memberSess, _, found := c.Sessions.CurrentLobby(name)
			if !found {
				continue
			}
			solo := c.createSoloLobby(ctx, memberSess, name)
			memberSess.Write(stateOf(solo.Snapshot()))
		}
		c.Log.Infof("leader %s left, lobby %s destroyed, %d members redistributed", username, l.ID, len(evicted))
		return
	}

	l.RemovePlayerUnsafe(username)
	snap := l.SnapshotUnsafe()
	c.Cast.LobbyUnsafe(stateOf(snap), l, broadcast.SystemSender)
	l.Mu.Unlock()

	c.Mirror.RemovePlayerFromLobby(ctx, l.ID, username)
	c.Sessions.SetLobby(sess.ID, uuid.Nil)

	if createSolo {
		solo := c.createSoloLobby(ctx, sess, username)
		sess.Write(stateOf(solo.Snapshot()))
	}
}

// PhaseMarker broadcasts the leader-only LOBBY_START_GAME / LOBBY_END_GAME
// marker to the rest of the lobby.
func (c *Coordinator) PhaseMarker(sess *session.Session, from, markerType string) {
	l, ok := c.currentLobbyOf(sess, from)
	if !ok {
		return
	}
	l.Mu.Lock()
	if l.Leader != from {
		l.Mu.Unlock()
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "only the lobby leader can do that"})
		return
	}
	c.Cast.LobbyUnsafe(protocol.PhaseMarker{Type: markerType, From: from}, l, from)
	l.Mu.Unlock()
}

// ShareGameIP relays the leader's game server address to the lobby.
func (c *Coordinator) ShareGameIP(sess *session.Session, from, lobbyIP string) {
	l, ok := c.currentLobbyOf(sess, from)
	if !ok {
		return
	}
	l.Mu.Lock()
	if l.Leader != from {
		l.Mu.Unlock()
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "only the lobby leader can share the game address"})
		return
	}
	c.Cast.LobbyUnsafe(protocol.GameIP{Type: protocol.TypeGameIP, From: from, LobbyIP: lobbyIP}, l, from)
	l.Mu.Unlock()
}

// Retrieve answers RETRIEVE_LOBBY with either every lobby or one by id.
func (c *Coordinator) Retrieve(sess *session.Session, msg protocol.Inbound) {
	if msg.All {
		lobbies := c.Lobbies.List()
		states := make([]protocol.LobbyState, 0, len(lobbies))
		for _, l := range lobbies {
			states = append(states, stateOf(l.Snapshot()))
		}
		sort.Slice(states, func(i, j int) bool { return states[i].LobbyID < states[j].LobbyID })
		sess.Write(protocol.LobbyList{Type: protocol.TypeLobbyList, Lobbies: states})
		return
	}
	l, ok := c.lobbyByString(msg.LobbyID)
	if !ok {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "lobby does not exist"})
		return
	}
	sess.Write(stateOf(l.Snapshot()))
}

// RebuildFromMirror repopulates the store from mirrored rows at startup.
func (c *Coordinator) RebuildFromMirror(ctx context.Context) {
	rows := c.Mirror.RebuildLobbies(ctx)
	for _, row := range rows {
		c.Lobbies.Add(lobby.Rehydrate(row.ID, row.Leader, row.Players))
	}
	if len(rows) > 0 {
		c.Log.Infof("rebuilt %d lobbies from the mirror", len(rows))
	}
}

// lobbyByString parses and resolves a lobby id, converting missing-key access
// into a recoverable failure.
func (c *Coordinator) lobbyByString(id string) (*lobby.Lobby, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	return c.Lobbies.Get(parsed)
}

// currentLobbyOf resolves the lobby a user occupies, replying with an error
// envelope when there is none.
func (c *Coordinator) currentLobbyOf(sess *session.Session, username string) (*lobby.Lobby, bool) {
	_, lobbyID, ok := c.Sessions.CurrentLobby(username)
	if !ok || lobbyID == uuid.Nil {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "you are not in a lobby"})
		return nil, false
	}
	l, exists := c.Lobbies.Get(lobbyID)
	if !exists {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "lobby does not exist"})
		return nil, false
	}
	return l, true
}
