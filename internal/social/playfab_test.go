// internal/social/playfab_test.go
package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadehalls/relay/internal/config"
)

type recordedCall struct {
	path    string
	payload tagPayload
}

func newFakePlayFab(t *testing.T, status int) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("X-SecretKey"))
		body, _ := io.ReadAll(r.Body)
		var p tagPayload
		require.NoError(t, json.Unmarshal(body, &p))
		calls = append(calls, recordedCall{path: r.URL.Path, payload: p})
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func newClient(ts *httptest.Server) *PlayFabClient {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewPlayFabClient(config.Config{
		PlayFabBaseURL:      ts.URL,
		PlayFabSecret:       "secret",
		PlayFabAddFriendURL: ts.URL + "/Server/AddFriend",
		PlayFabSetTagURL:    ts.URL + "/Server/SetFriendTags",
	}, logger)
}

func TestAddFriendTwoWayWithTags(t *testing.T) {
	ts, calls := newFakePlayFab(t, http.StatusOK)
	c := newClient(ts)

	require.NoError(t, c.AddFriend(context.Background(), "PF1", "PF2"))
	require.Len(t, *calls, 4)

	adds := (*calls)[:2]
	assert.Equal(t, "/Server/AddFriend", adds[0].path)
	assert.Equal(t, "PF1", adds[0].payload.PlayFabID)
	assert.Equal(t, "PF2", adds[0].payload.FriendPlayFabID)
	assert.Equal(t, "PF2", adds[1].payload.PlayFabID)
	assert.Equal(t, "PF1", adds[1].payload.FriendPlayFabID)

	tags := (*calls)[2:]
	assert.Equal(t, "/Server/SetFriendTags", tags[0].path)
	assert.Equal(t, []string{"SentPending"}, tags[0].payload.Tags)
	// The misspelling is part of the deployed tag vocabulary.
	assert.Equal(t, []string{"RecievePending"}, tags[1].payload.Tags)
	assert.Equal(t, "PF2", tags[1].payload.PlayFabID)
}

func TestConfirmFriendTagsBothSides(t *testing.T) {
	ts, calls := newFakePlayFab(t, http.StatusOK)
	c := newClient(ts)

	require.NoError(t, c.ConfirmFriend(context.Background(), "PF1", "PF2"))
	require.Len(t, *calls, 2)
	assert.Equal(t, []string{"Confirm"}, (*calls)[0].payload.Tags)
	assert.Equal(t, []string{"Confirm"}, (*calls)[1].payload.Tags)
	assert.Equal(t, "PF2", (*calls)[1].payload.PlayFabID)
}

func TestRemoveFriendBothDirections(t *testing.T) {
	ts, calls := newFakePlayFab(t, http.StatusOK)
	c := newClient(ts)

	require.NoError(t, c.RemoveFriend(context.Background(), "PF1", "PF2"))
	require.Len(t, *calls, 2)
	assert.Equal(t, "/Server/RemoveFriend", (*calls)[0].path)
	assert.Equal(t, "PF1", (*calls)[0].payload.PlayFabID)
	assert.Equal(t, "PF2", (*calls)[1].payload.PlayFabID)
}

func TestNonSuccessStatusIsAnError(t *testing.T) {
	ts, calls := newFakePlayFab(t, http.StatusBadRequest)
	c := newClient(ts)

	err := c.AddFriend(context.Background(), "PF1", "PF2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Len(t, *calls, 1, "the workflow stops at the first failure")
}
