// internal/protocol/protocol.go
package protocol

import "encoding/json"

// Inbound message type discriminators. One JSON document per message, the
// "type" field selects the handler.
const (
	TypeSubscribe             = "SUBSCRIBE"
	TypeMessage               = "MESSAGE"
	TypeLobbyInviteRequest    = "LOBBY_INVITE_REQUEST"
	TypeLobbyRequestResponse  = "LOBBY_REQUEST_RESPONSE"
	TypeSendMessageInLobby    = "SEND_MESSAGE_IN_LOBBY"
	TypeLobbyUpdate           = "LOBBY_UPDATE"
	TypeExitLobby             = "EXIT_LOBBY"
	TypeLobbyStartGame        = "LOBBY_START_GAME"
	TypeLobbyEndGame          = "LOBBY_END_GAME"
	TypeShareGameIPInLobby    = "SHARE_GAME_IP_IN_LOBBY"
	TypeGetMatch              = "GET_MATCH"
	TypeSendFriendRequest     = "SEND_FRIEND_REQUEST"
	TypeFinalizeFriendRequest = "FINALIZE_FRIEND_REQUEST"
	TypeRemoveFriend          = "REMOVE_FRIEND"
	TypeRetrieveLobby         = "RETRIEVE_LOBBY"
	TypeSignUp                = "SIGN_UP"
	TypeLogIn                 = "LOG_IN"
)

// ResponseAccept is the LOBBY_REQUEST_RESPONSE value that triggers the join
// workflow; anything else is relayed to the inviter verbatim.
const ResponseAccept = "ACCEPT"

// Inbound is the union of every client-to-server message. Fields not used by
// a given type are simply left at their zero value by the decoder.
type Inbound struct {
	Type     string `json:"type"`
	UserName string `json:"userName,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Message  string `json:"message,omitempty"`
	LobbyID  string `json:"lobbyId,omitempty"`
	Response string `json:"response,omitempty"`
	QueueID  string `json:"queueId,omitempty"`
	LobbyIP  string `json:"lobbyIp,omitempty"`
	All      bool   `json:"all,omitempty"`
	Password string `json:"password,omitempty"`

	// PlayFab ids for the friend operations.
	PlayFabID       string `json:"playFabId,omitempty"`
	FriendPlayFabID string `json:"friendPlayFabId,omitempty"`

	// Data carries the optional fields of a LOBBY_UPDATE.
	Data *LobbyUpdateData `json:"data,omitempty"`
}

// Decode parses one raw websocket text frame into an Inbound.
func Decode(raw []byte) (Inbound, error) {
	var msg Inbound
	err := json.Unmarshal(raw, &msg)
	return msg, err
}

// LobbyUpdateData is the payload of a LOBBY_UPDATE. Pointer fields distinguish
// "absent" from a zero value so partial updates decode unambiguously.
type LobbyUpdateData struct {
	Seat      *int    `json:"seat,omitempty"`
	Ready     *bool   `json:"ready,omitempty"`
	MatchType *string `json:"matchType,omitempty"`
	MapID     *string `json:"mapId,omitempty"`
	Ping      *int    `json:"ping,omitempty"`
}
