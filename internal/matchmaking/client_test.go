// internal/matchmaking/client_test.go
package matchmaking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadehalls/relay/internal/config"
)

func newFakePlayFab(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Authentication/GetEntityToken":
			require.Equal(t, "secret", r.Header.Get("X-SecretKey"))
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"EntityToken": "tok"}})
		case "/Match/CreateMatchmakingTicket":
			require.Equal(t, "tok", r.Header.Get("X-EntityToken"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "duel", body["QueueName"])
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"TicketId": "t-1"}})
		case "/Match/GetMatchmakingTicket":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"Status": "Matched", "MatchId": "m-1"}})
		case "/Match/GetMatch":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"Members": []map[string]any{
				{"Entity": map[string]any{"Id": "alice", "Type": "title_player_account"}},
				{"Entity": map[string]any{"Id": "bob", "Type": "title_player_account"}},
			}}})
		default:
			http.Error(w, "no such endpoint", http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestPlayFabClientRoundTrip(t *testing.T) {
	ts := newFakePlayFab(t)
	c := NewPlayFabClient(config.Config{PlayFabBaseURL: ts.URL, PlayFabSecret: "secret"})
	ctx := context.Background()

	token, err := c.GetEntityToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	ticketID, err := c.CreateTicket(ctx, token, "duel", []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", ticketID)

	status, err := c.GetTicket(ctx, token, "duel", ticketID)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, status.Status)
	assert.Equal(t, "m-1", status.MatchID)

	members, err := c.GetMatch(ctx, token, "duel", status.MatchID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)
}

func TestCreateTicketRequiresMembers(t *testing.T) {
	c := NewPlayFabClient(config.Config{PlayFabBaseURL: "http://unreachable.invalid", PlayFabSecret: "secret"})

	_, err := c.CreateTicket(context.Background(), "tok", "duel", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no members")
}

func TestPlayFabClientErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid secret", http.StatusUnauthorized)
	}))
	t.Cleanup(ts.Close)
	c := NewPlayFabClient(config.Config{PlayFabBaseURL: ts.URL, PlayFabSecret: "bad"})

	_, err := c.GetEntityToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
