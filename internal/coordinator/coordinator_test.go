// internal/coordinator/coordinator_test.go
package coordinator

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadehalls/relay/internal/broadcast"
	"github.com/arcadehalls/relay/internal/cache"
	"github.com/arcadehalls/relay/internal/config"
	"github.com/arcadehalls/relay/internal/database"
	"github.com/arcadehalls/relay/internal/lobby"
	"github.com/arcadehalls/relay/internal/protocol"
	"github.com/arcadehalls/relay/internal/session"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mirror, err := database.Connect(context.Background(), config.Config{}, logger)
	require.NoError(t, err)
	events, err := cache.Connect("", 0, "relay:events", logger)
	require.NoError(t, err)

	reg := session.NewRegistry()
	store := lobby.NewStore()
	return New(reg, store, broadcast.NewEngine(reg), mirror, events, logger)
}

// subscribe registers a fake connection, claims the name, and drains the
// welcome traffic so tests start from a quiet channel.
func subscribe(t *testing.T, c *Coordinator, name string) *session.Session {
	t.Helper()
	sess := session.New(func() {})
	c.Sessions.Register(sess)
	c.Subscribe(context.Background(), sess, name)

	msgs := drain(sess)
	require.NotEmpty(t, msgs)
	sub, ok := msgs[0].(protocol.Subscribed)
	require.True(t, ok, "first reply to a fresh subscribe must be SUBSCRIBED, got %T", msgs[0])
	require.Equal(t, name, sub.UserName)
	drainAll(c)
	return sess
}

func drain(s *session.Session) []any {
	var out []any
	for {
		select {
		case msg := <-s.Out:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func drainAll(c *Coordinator) {
	for _, s := range c.Sessions.Snapshot() {
		drain(s)
	}
}

// joinLobby walks bob through the invite/accept handshake into alice's lobby.
func joinLobby(t *testing.T, c *Coordinator, leader, joiner *session.Session) *lobby.Lobby {
	t.Helper()
	_, lobbyID, ok := c.Sessions.CurrentLobby(leader.Username)
	require.True(t, ok)

	c.RespondInvite(context.Background(), joiner, protocol.Inbound{
		From:     joiner.Username,
		To:       leader.Username,
		LobbyID:  lobbyID.String(),
		Response: protocol.ResponseAccept,
	})
	l, ok := c.Lobbies.Get(lobbyID)
	require.True(t, ok)

	l.Mu.Lock()
	_, member := l.Players[joiner.Username]
	l.Mu.Unlock()
	require.True(t, member, "%s should be a member after accepting", joiner.Username)
	drainAll(c)
	return l
}

func TestSubscribeCreatesSoloLobby(t *testing.T) {
	c := newTestCoordinator(t)
	sess := subscribe(t, c, "alice")

	assert.Equal(t, 1, c.Lobbies.Len())
	_, lobbyID, ok := c.Sessions.CurrentLobby("alice")
	require.True(t, ok)
	l, ok := c.Lobbies.Get(lobbyID)
	require.True(t, ok)
	assert.Equal(t, "alice", l.Leader)
	assert.Equal(t, lobbyID, sess.LobbyID)
}

func TestSubscribeDuplicateName(t *testing.T) {
	c := newTestCoordinator(t)
	subscribe(t, c, "alice")

	dup := session.New(func() {})
	c.Sessions.Register(dup)
	c.Subscribe(context.Background(), dup, "alice")

	msgs := drain(dup)
	require.Len(t, msgs, 1)
	notice, ok := msgs[0].(protocol.Notice)
	require.True(t, ok)
	assert.Equal(t, "Username already exist please choose a different username", notice.Message)
	assert.Equal(t, 1, c.Lobbies.Len(), "a rejected subscribe must not create a lobby")
	assert.Equal(t, 1, c.Sessions.PresenceCount())
}

func TestSubscribeAnnouncesPresence(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")

	carol := session.New(func() {})
	c.Sessions.Register(carol)
	c.Subscribe(context.Background(), carol, "carol")

	for _, s := range []*session.Session{alice, bob} {
		msgs := drain(s)
		require.Len(t, msgs, 1, "%s should hear about the new player", s.Username)
		presence, ok := msgs[0].(protocol.Presence)
		require.True(t, ok)
		assert.Equal(t, protocol.TypePlayerJoined, presence.Type)
		assert.Equal(t, "carol", presence.UserName)
	}
	// The joiner gets the SUBSCRIBED reply, not their own presence echo.
	carolMsgs := drain(carol)
	require.Len(t, carolMsgs, 1)
	_, ok := carolMsgs[0].(protocol.Subscribed)
	assert.True(t, ok)
}

func TestInviteLeaderOnly(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	joinLobby(t, c, alice, bob)
	subscribe(t, c, "carol")

	// bob is a member, not the leader.
	c.Invite(bob, "bob", "carol")
	msgs := drain(bob)
	require.Len(t, msgs, 1)
	reply, ok := msgs[0].(protocol.ErrorReply)
	require.True(t, ok)
	assert.Contains(t, reply.Message, "leader")
}

func TestInviteOfflineTarget(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")

	c.Invite(alice, "alice", "ghost")
	msgs := drain(alice)
	require.Len(t, msgs, 1)
	notice, ok := msgs[0].(protocol.Notice)
	require.True(t, ok)
	assert.Equal(t, "No user with username ghost exist", notice.Message)
}

func TestInviteAcceptFlow(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")

	_, aliceLobbyID, _ := c.Sessions.CurrentLobby("alice")
	c.Invite(alice, "alice", "bob")
	bobMsgs := drain(bob)
	require.Len(t, bobMsgs, 1)
	invite, ok := bobMsgs[0].(protocol.LobbyInvite)
	require.True(t, ok)
	assert.Equal(t, "alice", invite.From)
	assert.Equal(t, aliceLobbyID.String(), invite.LobbyID)
	drain(alice)

	c.RespondInvite(context.Background(), bob, protocol.Inbound{
		From:     "bob",
		To:       "alice",
		LobbyID:  invite.LobbyID,
		Response: protocol.ResponseAccept,
	})

	// The inviter hears the response, then both members get the new state.
	aliceMsgs := drain(alice)
	require.Len(t, aliceMsgs, 2)
	resp, ok := aliceMsgs[0].(protocol.InviteResponse)
	require.True(t, ok)
	assert.Equal(t, protocol.ResponseAccept, resp.Response)
	state, ok := aliceMsgs[1].(protocol.LobbyState)
	require.True(t, ok)
	require.Len(t, state.Players, 2)
	assert.Equal(t, "alice", state.Players[0].UserName)
	assert.Equal(t, 1, state.Players[0].Seat)
	assert.Equal(t, "bob", state.Players[1].UserName)
	assert.Equal(t, 2, state.Players[1].Seat)

	// The accepter first hears their abandoned solo lobby go down, then the
	// state of the lobby they joined.
	bobState := drain(bob)
	require.Len(t, bobState, 2)
	_, ok = bobState[0].(protocol.LobbyDestroyed)
	assert.True(t, ok)
	_, ok = bobState[1].(protocol.LobbyState)
	assert.True(t, ok, "the accepter receives the state broadcast too")

	// bob's abandoned solo lobby is gone; only alice's lobby remains.
	assert.Equal(t, 1, c.Lobbies.Len())
	_, bobLobbyID, _ := c.Sessions.CurrentLobby("bob")
	assert.Equal(t, aliceLobbyID, bobLobbyID)
}

func TestDeclineDoesNotJoin(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	_, aliceLobbyID, _ := c.Sessions.CurrentLobby("alice")

	c.RespondInvite(context.Background(), bob, protocol.Inbound{
		From:     "bob",
		To:       "alice",
		LobbyID:  aliceLobbyID.String(),
		Response: "DECLINE",
	})

	msgs := drain(alice)
	require.Len(t, msgs, 1)
	resp, ok := msgs[0].(protocol.InviteResponse)
	require.True(t, ok)
	assert.Equal(t, "DECLINE", resp.Response)
	assert.Equal(t, 2, c.Lobbies.Len(), "decline leaves both solo lobbies alone")
}

func TestUpdateSeatConflictIsAtomic(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	l := joinLobby(t, c, alice, bob)

	ready := true
	seat := 1 // alice's seat
	c.Update(bob, protocol.Inbound{
		From:    "bob",
		LobbyID: l.ID.String(),
		Data:    &protocol.LobbyUpdateData{Seat: &seat, Ready: &ready},
	})

	// The whole update is rejected: the Ready flag must not have been applied.
	l.Mu.Lock()
	assert.False(t, l.Players["bob"].Ready)
	assert.Equal(t, 2, l.Players["bob"].Seat)
	l.Mu.Unlock()

	bobMsgs := drain(bob)
	require.Len(t, bobMsgs, 2)
	reply, ok := bobMsgs[0].(protocol.ErrorReply)
	require.True(t, ok)
	assert.Equal(t, "seat already occupied", reply.Message)
	prior, ok := bobMsgs[1].(protocol.LobbyState)
	require.True(t, ok, "the rejected caller receives the prior state")
	assert.Equal(t, 2, prior.Players[1].Seat)

	// Nobody else hears anything about the rejected attempt.
	assert.Empty(t, drain(alice))
}

func TestUpdateLeaderOnlySettings(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	l := joinLobby(t, c, alice, bob)

	matchType := "ranked"
	c.Update(bob, protocol.Inbound{
		From:    "bob",
		LobbyID: l.ID.String(),
		Data:    &protocol.LobbyUpdateData{MatchType: &matchType},
	})

	bobMsgs := drain(bob)
	require.Len(t, bobMsgs, 2)
	reply, ok := bobMsgs[0].(protocol.ErrorReply)
	require.True(t, ok)
	assert.Contains(t, reply.Message, "leader")
	l.Mu.Lock()
	assert.Empty(t, l.MatchType)
	l.Mu.Unlock()
}

func TestUpdateBroadcastsToAllMembers(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	l := joinLobby(t, c, alice, bob)

	ready := true
	ping := 42
	c.Update(bob, protocol.Inbound{
		From:    "bob",
		LobbyID: l.ID.String(),
		Data:    &protocol.LobbyUpdateData{Ready: &ready, Ping: &ping},
	})

	for _, s := range []*session.Session{alice, bob} {
		msgs := drain(s)
		require.Len(t, msgs, 1, "%s should receive exactly one state broadcast", s.Username)
		state, ok := msgs[0].(protocol.LobbyState)
		require.True(t, ok)
		assert.True(t, state.Players[1].Ready)
		assert.Equal(t, 42, state.Players[1].Ping)
	}
}

func TestExitNonLeader(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	l := joinLobby(t, c, alice, bob)

	c.Exit(context.Background(), "bob")

	// alice gets the shrunken state for the shared lobby.
	aliceMsgs := drain(alice)
	require.Len(t, aliceMsgs, 1)
	state, ok := aliceMsgs[0].(protocol.LobbyState)
	require.True(t, ok)
	require.Len(t, state.Players, 1)
	assert.Equal(t, "alice", state.Players[0].UserName)

	// bob is re-homed into a fresh solo lobby he leads.
	bobMsgs := drain(bob)
	require.NotEmpty(t, bobMsgs)
	solo, ok := bobMsgs[len(bobMsgs)-1].(protocol.LobbyState)
	require.True(t, ok)
	require.Len(t, solo.Players, 1)
	assert.Equal(t, "bob", solo.Leader)
	assert.NotEqual(t, l.ID.String(), solo.LobbyID)

	assert.Equal(t, 2, c.Lobbies.Len())
	l.Mu.Lock()
	_, stillMember := l.Players["bob"]
	l.Mu.Unlock()
	assert.False(t, stillMember)
}

func TestLeaderExitRedistributesMembers(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	carol := subscribe(t, c, "carol")
	l := joinLobby(t, c, alice, bob)
	joinLobby(t, c, alice, carol)

	c.Exit(context.Background(), "alice")

	// The shared lobby is gone; bob and carol each lead a solo lobby, and no
	// lobby anywhere contains the departed leader.
	_, ok := c.Lobbies.Get(l.ID)
	assert.False(t, ok)
	assert.Equal(t, lobby.Destroyed, l.StateUnsafe())
	assert.Equal(t, 2, c.Lobbies.Len())
	for _, remaining := range c.Lobbies.List() {
		remaining.Mu.Lock()
		_, member := remaining.Players["alice"]
		remaining.Mu.Unlock()
		assert.False(t, member, "no lobby may contain the departed leader")
	}
	_, aliceLobbyID, found := c.Sessions.CurrentLobby("alice")
	require.True(t, found)
	assert.Equal(t, uuid.Nil, aliceLobbyID)

	for _, member := range []*session.Session{bob, carol} {
		msgs := drain(member)
		require.Len(t, msgs, 2, "%s: destroyed notice then new solo state", member.Username)
		destroyed, ok := msgs[0].(protocol.LobbyDestroyed)
		require.True(t, ok)
		assert.Equal(t, l.ID.String(), destroyed.LobbyID)
		solo, ok := msgs[1].(protocol.LobbyState)
		require.True(t, ok)
		assert.Equal(t, member.Username, solo.Leader)
		require.Len(t, solo.Players, 1)
		assert.Equal(t, 1, solo.Players[0].Seat)
	}

	// The departing leader only hears the lobby go down; they are not re-homed.
	aliceMsgs := drain(alice)
	require.Len(t, aliceMsgs, 1)
	_, ok = aliceMsgs[0].(protocol.LobbyDestroyed)
	assert.True(t, ok)
}

// TestJoinRacingLeaderTeardown pins the serialization rule: once the leader's
// departure has begun destroying a lobby, a concurrent join either completes
// before the teardown (and gets evicted into a solo lobby like any member) or
// is rejected. A session must never end up pointing at a deleted lobby.
func TestJoinRacingLeaderTeardown(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := newTestCoordinator(t)
		alice := subscribe(t, c, "alice")
		bob := subscribe(t, c, "bob")
		carol := subscribe(t, c, "carol")
		l := joinLobby(t, c, alice, bob)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Exit(context.Background(), "alice")
		}()
		go func() {
			defer wg.Done()
			c.AcceptInvite(context.Background(), carol, "carol", l.ID)
		}()
		wg.Wait()

		_, carolLobbyID, found := c.Sessions.CurrentLobby("carol")
		require.True(t, found)
		if carolLobbyID != uuid.Nil {
			_, exists := c.Lobbies.Get(carolLobbyID)
			require.True(t, exists, "carol's session points at a deleted lobby")
		}
	}
}

func TestDisconnectCleanupIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	joinLobby(t, c, alice, bob)

	c.DisconnectCleanup(context.Background(), bob.ID)
	c.DisconnectCleanup(context.Background(), bob.ID)

	msgs := drain(alice)
	var states, left int
	for _, m := range msgs {
		switch m.(type) {
		case protocol.LobbyState:
			states++
		case protocol.Presence:
			left++
		}
	}
	assert.Equal(t, 1, states, "exactly one state broadcast despite the double cleanup")
	assert.Equal(t, 1, left, "exactly one PLAYER_LEFT despite the double cleanup")

	// Disconnect does not re-home the departed player.
	assert.Equal(t, 1, c.Lobbies.Len())
}

func TestDisconnectOfLeaderDestroysLobby(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	l := joinLobby(t, c, alice, bob)

	c.DisconnectCleanup(context.Background(), alice.ID)
	c.Sessions.Release(alice.ID)

	_, ok := c.Lobbies.Get(l.ID)
	assert.False(t, ok)
	msgs := drain(bob)
	require.Len(t, msgs, 3)
	_, ok = msgs[0].(protocol.LobbyDestroyed)
	assert.True(t, ok)
	solo, ok := msgs[1].(protocol.LobbyState)
	require.True(t, ok)
	assert.Equal(t, "bob", solo.Leader)
	presence, ok := msgs[2].(protocol.Presence)
	require.True(t, ok)
	assert.Equal(t, protocol.TypePlayerLeft, presence.Type)
	assert.Equal(t, "alice", presence.UserName)
}

func TestDirectMessage(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")

	c.DirectMessage(alice, "alice", "bob", "hello")
	msgs := drain(bob)
	require.Len(t, msgs, 1)
	dm, ok := msgs[0].(protocol.DirectMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", dm.Message)

	c.DirectMessage(alice, "alice", "ghost", "anyone there")
	msgs = drain(alice)
	require.Len(t, msgs, 1)
	notice, ok := msgs[0].(protocol.Notice)
	require.True(t, ok)
	assert.Equal(t, "No user with username ghost exist", notice.Message)
}

func TestLobbyMessageExcludesSender(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	l := joinLobby(t, c, alice, bob)

	c.LobbyMessage(bob, protocol.Inbound{From: "bob", LobbyID: l.ID.String(), Message: "gl hf"})

	aliceMsgs := drain(alice)
	require.Len(t, aliceMsgs, 1)
	chat, ok := aliceMsgs[0].(protocol.LobbyMessage)
	require.True(t, ok)
	assert.Equal(t, "gl hf", chat.Message)
	assert.Empty(t, drain(bob), "the sender does not hear their own chat echo")
}

// TestBroadcastSkipsFormerMember pins the membership-at-send-time rule: once a
// player has left a lobby, broadcasts in that lobby can never reach them.
func TestBroadcastSkipsFormerMember(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	l := joinLobby(t, c, alice, bob)

	c.Exit(context.Background(), "bob")
	drainAll(c)

	c.LobbyMessage(alice, protocol.Inbound{From: "alice", LobbyID: l.ID.String(), Message: "still here?"})
	assert.Empty(t, drain(bob), "a former member must not receive lobby traffic")
}

func TestShareGameIPLeaderOnly(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	bob := subscribe(t, c, "bob")
	joinLobby(t, c, alice, bob)

	c.ShareGameIP(alice, "alice", "10.0.0.5:7777")
	msgs := drain(bob)
	require.Len(t, msgs, 1)
	ip, ok := msgs[0].(protocol.GameIP)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:7777", ip.LobbyIP)

	c.ShareGameIP(bob, "bob", "10.0.0.6:7777")
	msgs = drain(bob)
	require.Len(t, msgs, 1)
	_, ok = msgs[0].(protocol.ErrorReply)
	assert.True(t, ok)
}

func TestRetrieveAllSorted(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")
	subscribe(t, c, "bob")
	subscribe(t, c, "carol")

	c.Retrieve(alice, protocol.Inbound{All: true})
	msgs := drain(alice)
	require.Len(t, msgs, 1)
	list, ok := msgs[0].(protocol.LobbyList)
	require.True(t, ok)
	require.Len(t, list.Lobbies, 3)
	for i := 1; i < len(list.Lobbies); i++ {
		assert.LessOrEqual(t, list.Lobbies[i-1].LobbyID, list.Lobbies[i].LobbyID)
	}
}

func TestRetrieveUnknownLobby(t *testing.T) {
	c := newTestCoordinator(t)
	alice := subscribe(t, c, "alice")

	c.Retrieve(alice, protocol.Inbound{LobbyID: uuid.NewString()})
	msgs := drain(alice)
	require.Len(t, msgs, 1)
	reply, ok := msgs[0].(protocol.ErrorReply)
	require.True(t, ok)
	assert.Equal(t, "lobby does not exist", reply.Message)
}
