// internal/handlers/server.go
package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/arcadehalls/relay/internal/auth"
	"github.com/arcadehalls/relay/internal/broadcast"
	"github.com/arcadehalls/relay/internal/coordinator"
	"github.com/arcadehalls/relay/internal/database"
	"github.com/arcadehalls/relay/internal/lobby"
	"github.com/arcadehalls/relay/internal/matchmaking"
	"github.com/arcadehalls/relay/internal/protocol"
	"github.com/arcadehalls/relay/internal/session"
	"github.com/arcadehalls/relay/internal/social"
)

// Server glues the stores, the coordinator, and the collaborators together
// behind the single websocket endpoint.
type Server struct {
	Sessions *session.Registry
	Lobbies  *lobby.Store
	Cast     *broadcast.Engine
	Coord    *coordinator.Coordinator
	Match    *matchmaking.Orchestrator
	Social   social.Client
	Auth     *auth.Service
	Mirror   *database.Mirror
	Log      *logrus.Logger
}

// Route dispatches one inbound message. Every error is handled here: logged,
// answered with an envelope when tied to the triggering message, and never
// allowed to cross session boundaries or kill the process.
func (srv *Server) Route(ctx context.Context, sess *session.Session, msg protocol.Inbound) {
	switch msg.Type {
	case protocol.TypeSubscribe:
		srv.Coord.Subscribe(ctx, sess, msg.UserName)

	case protocol.TypeMessage:
		srv.Coord.DirectMessage(sess, msg.From, msg.To, msg.Message)

	case protocol.TypeLobbyInviteRequest:
		srv.Coord.Invite(sess, msg.From, msg.To)

	case protocol.TypeLobbyRequestResponse:
		srv.Coord.RespondInvite(ctx, sess, msg)

	case protocol.TypeSendMessageInLobby:
		srv.Coord.LobbyMessage(sess, msg)

	case protocol.TypeLobbyUpdate:
		srv.Coord.Update(sess, msg)

	case protocol.TypeExitLobby:
		srv.Coord.Exit(ctx, msg.From)

	case protocol.TypeLobbyStartGame:
		srv.Coord.PhaseMarker(sess, msg.From, protocol.TypeGameStarted)

	case protocol.TypeLobbyEndGame:
		srv.Coord.PhaseMarker(sess, msg.From, protocol.TypeGameEnded)

	case protocol.TypeShareGameIPInLobby:
		srv.Coord.ShareGameIP(sess, msg.From, msg.LobbyIP)

	case protocol.TypeGetMatch:
		srv.startMatchmaking(sess, msg)

	case protocol.TypeSendFriendRequest:
		srv.friendOp(ctx, sess, "add", msg, srv.Social.AddFriend)

	case protocol.TypeFinalizeFriendRequest:
		srv.friendOp(ctx, sess, "finalize", msg, srv.Social.ConfirmFriend)

	case protocol.TypeRemoveFriend:
		srv.friendOp(ctx, sess, "remove", msg, srv.Social.RemoveFriend)

	case protocol.TypeRetrieveLobby:
		srv.Coord.Retrieve(sess, msg)

	case protocol.TypeSignUp:
		srv.signUp(ctx, sess, msg)

	case protocol.TypeLogIn:
		srv.logIn(ctx, sess, msg)

	default:
		srv.Log.Warnf("session %s: unknown message type %q", sess.ID, msg.Type)
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "unknown message type: " + msg.Type})
	}
}

// startMatchmaking validates the leader-only trigger and launches the
// orchestrator on its own goroutine, bound to the lobby's context so a
// destroyed lobby cancels the round mid-flight.
func (srv *Server) startMatchmaking(sess *session.Session, msg protocol.Inbound) {
	_, lobbyID, ok := srv.Sessions.CurrentLobby(msg.From)
	if !ok {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "you are not in a lobby"})
		return
	}
	l, exists := srv.Lobbies.Get(lobbyID)
	if !exists {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "lobby does not exist"})
		return
	}
	l.Mu.Lock()
	isLeader := l.Leader == msg.From
	l.Mu.Unlock()
	if !isLeader {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "only the lobby leader can request a match"})
		return
	}

	go srv.Match.Run(l.Context(), l, msg.QueueID, sess)
}

// friendOp delegates one social-graph call on its own goroutine and reports
// the structured outcome back to the caller when it completes.
func (srv *Server) friendOp(ctx context.Context, sess *session.Session, op string, msg protocol.Inbound,
	call func(context.Context, string, string) error) {
	if msg.PlayFabID == "" || msg.FriendPlayFabID == "" {
		sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "playFabId and friendPlayFabId are required"})
		return
	}
	go func() {
		result := protocol.FriendResult{Type: protocol.TypeFriendResult, Operation: op, Success: true}
		if err := call(ctx, msg.PlayFabID, msg.FriendPlayFabID); err != nil {
			srv.Log.Warnf("friend %s failed for %s: %v", op, msg.PlayFabID, err)
			result.Success = false
			result.Message = err.Error()
		}
		sess.Write(result)
	}()
}

// signUp stores a player row with an Argon2id password hash via the mirror.
func (srv *Server) signUp(ctx context.Context, sess *session.Session, msg protocol.Inbound) {
	if msg.UserName == "" || msg.Password == "" {
		sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: false, Message: "userName and password are required"})
		return
	}
	go func() {
		exists, err := srv.Mirror.PlayerExists(ctx, msg.UserName)
		if err != nil {
			srv.Log.Warnf("sign up: player lookup failed: %v", err)
			sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: false, Message: "account store unavailable"})
			return
		}
		if exists {
			sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: false, Message: "username already registered"})
			return
		}
		hash, err := auth.HashPassword(msg.Password)
		if err != nil {
			srv.Log.Warnf("sign up: hashing failed: %v", err)
			sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: false, Message: "failed to create account"})
			return
		}
		srv.Mirror.AddPlayer(ctx, sess.ID, msg.UserName, hash)
		sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: true})
	}()
}

// logIn verifies credentials against the mirror and returns a signed session
// token on success.
func (srv *Server) logIn(ctx context.Context, sess *session.Session, msg protocol.Inbound) {
	if msg.UserName == "" || msg.Password == "" {
		sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: false, Message: "userName and password are required"})
		return
	}
	go func() {
		_, hash, err := srv.Mirror.GetPlayerCredentials(ctx, msg.UserName)
		if err != nil || hash == "" {
			sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: false, Message: "invalid username or password"})
			return
		}
		match, err := auth.VerifyPassword(msg.Password, hash)
		if err != nil || !match {
			sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: false, Message: "invalid username or password"})
			return
		}
		token, err := srv.Auth.CreateToken(msg.UserName)
		if err != nil {
			srv.Log.Warnf("log in: token creation failed: %v", err)
			sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: false, Message: "failed to issue token"})
			return
		}
		sess.Write(protocol.AuthResult{Type: protocol.TypeAuthResult, Success: true, Token: token})
	}()
}
