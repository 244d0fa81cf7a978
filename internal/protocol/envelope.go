// internal/protocol/envelope.go
package protocol

// Outbound type discriminators. Every reply is a JSON envelope with a "type"
// field, no bare text frames.
const (
	TypeWelcome        = "WELCOME"
	TypeNotice         = "NOTICE"
	TypeError          = "ERROR"
	TypeSubscribed     = "SUBSCRIBED"
	TypePlayerJoined   = "PLAYER_JOINED"
	TypePlayerLeft     = "PLAYER_LEFT"
	TypeLobbyInvite    = "LOBBY_INVITE"
	TypeLobbyState     = "LOBBY_STATE"
	TypeLobbyDestroyed = "LOBBY_DESTROYED"
	TypeLobbyMessage   = "LOBBY_MESSAGE"
	TypeLobbyList      = "LOBBY_LIST"
	TypeGameStarted    = "GAME_STARTED"
	TypeGameEnded      = "GAME_ENDED"
	TypeGameIP         = "GAME_IP"
	TypeMatchPending   = "MATCH_PENDING"
	TypeMatchFound     = "MATCH_FOUND"
	TypeMatchError     = "MATCH_ERROR"
	TypeFriendResult   = "FRIEND_RESULT"
	TypeAuthResult     = "AUTH_RESULT"
)

// Welcome greets a fresh connection before it subscribes.
type Welcome struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// Notice is a plain informational reply tied to the triggering message
// (offline targets, duplicate usernames, and similar validation outcomes).
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorReply reports a failed operation back to the caller only.
type ErrorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Subscribed acknowledges a successful SUBSCRIBE with the solo lobby id.
type Subscribed struct {
	Type     string `json:"type"`
	UserName string `json:"userName"`
	LobbyID  string `json:"lobbyId"`
}

// Presence announces a player joining or leaving the server.
type Presence struct {
	Type     string `json:"type"`
	UserName string `json:"userName"`
}

// DirectMessage relays a MESSAGE between two users.
type DirectMessage struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// LobbyInvite carries an invitation along with the inviter's lobby id.
type LobbyInvite struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	LobbyID string `json:"lobbyId"`
}

// InviteResponse relays accept/decline back to the inviter.
type InviteResponse struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	LobbyID  string `json:"lobbyId"`
	Response string `json:"response"`
}

// LobbyPlayer is one seat holder inside a LobbyState.
type LobbyPlayer struct {
	UserName string `json:"userName"`
	Seat     int    `json:"seat"`
	Ready    bool   `json:"ready"`
	Ping     int    `json:"ping"`
}

// LobbyState is the full lobby snapshot broadcast after every mutation.
type LobbyState struct {
	Type      string        `json:"type"`
	LobbyID   string        `json:"lobbyId"`
	Leader    string        `json:"leader"`
	MatchType string        `json:"matchType"`
	MapID     string        `json:"mapId"`
	Players   []LobbyPlayer `json:"players"`
}

// LobbyDestroyed precedes removal of a lobby whose leader departed.
type LobbyDestroyed struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId"`
}

// LobbyMessage is a lobby-scoped chat relay.
type LobbyMessage struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// LobbyList answers RETRIEVE_LOBBY.
type LobbyList struct {
	Type    string       `json:"type"`
	Lobbies []LobbyState `json:"lobbies"`
}

// PhaseMarker is the leader-only LOBBY_START_GAME / LOBBY_END_GAME broadcast.
type PhaseMarker struct {
	Type string `json:"type"`
	From string `json:"from"`
}

// GameIP is the leader-only SHARE_GAME_IP_IN_LOBBY relay.
type GameIP struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	LobbyIP string `json:"lobbyIp"`
}

// MatchPending acknowledges a submitted matchmaking ticket.
type MatchPending struct {
	Type     string `json:"type"`
	TicketID string `json:"ticketId"`
}

// MatchFound tells a matched player where the game server is listening.
type MatchFound struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// MatchError is the terminal failure notice for an aborted matchmaking
// workflow, broadcast to the whole lobby.
type MatchError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FriendResult reports the outcome of a delegated social-graph operation.
type FriendResult struct {
	Type      string `json:"type"`
	Operation string `json:"operation"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

// AuthResult reports SIGN_UP / LOG_IN outcomes; Token is set on login success.
type AuthResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}
