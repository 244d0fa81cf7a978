// internal/social/playfab.go
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arcadehalls/relay/internal/config"
)

// Friend-tag values understood by the game client. The misspelled
// "RecievePending" is part of the deployed tag vocabulary and must not be
// corrected.
var (
	tagSentPending    = []string{"SentPending"}
	tagReceivePending = []string{"RecievePending"}
	tagConfirm        = []string{"Confirm"}
)

// Client is the social-graph collaborator. The server delegates friend
// operations here and only relays success or failure; it keeps no friend
// state of its own.
type Client interface {
	// AddFriend creates the relation in both directions and tags the two
	// sides SentPending / RecievePending.
	AddFriend(ctx context.Context, playFabID, friendPlayFabID string) error
	// ConfirmFriend sets the Confirm tag on both directions.
	ConfirmFriend(ctx context.Context, playFabID, friendPlayFabID string) error
	// RemoveFriend deletes the relation in both directions.
	RemoveFriend(ctx context.Context, playFabID, friendPlayFabID string) error
}

// PlayFabClient talks to the PlayFab server API with the title secret key.
type PlayFabClient struct {
	addFriendURL    string
	setTagURL       string
	removeFriendURL string
	secret          string
	http            *http.Client
	log             *logrus.Logger
}

// NewPlayFabClient builds the client from config.
func NewPlayFabClient(cfg config.Config, logger *logrus.Logger) *PlayFabClient {
	return &PlayFabClient{
		addFriendURL:    cfg.PlayFabAddFriendURL,
		setTagURL:       cfg.PlayFabSetTagURL,
		removeFriendURL: cfg.PlayFabBaseURL + "/Server/RemoveFriend",
		secret:          cfg.PlayFabSecret,
		http:            &http.Client{Timeout: 10 * time.Second},
		log:             logger,
	}
}

type friendPayload struct {
	PlayFabID       string `json:"PlayFabId"`
	FriendPlayFabID string `json:"FriendPlayFabId"`
}

type tagPayload struct {
	PlayFabID       string   `json:"PlayFabId"`
	FriendPlayFabID string   `json:"FriendPlayFabId"`
	Tags            []string `json:"Tags"`
}

// AddFriend performs the two-way add and then tags both sides. The two tag
// writes are sequential; PlayFab tolerates either order.
func (c *PlayFabClient) AddFriend(ctx context.Context, playFabID, friendPlayFabID string) error {
	if err := c.post(ctx, c.addFriendURL, friendPayload{playFabID, friendPlayFabID}); err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	if err := c.post(ctx, c.addFriendURL, friendPayload{friendPlayFabID, playFabID}); err != nil {
		return fmt.Errorf("add friend reverse: %w", err)
	}
	if err := c.post(ctx, c.setTagURL, tagPayload{playFabID, friendPlayFabID, tagSentPending}); err != nil {
		return fmt.Errorf("set sent-pending tag: %w", err)
	}
	if err := c.post(ctx, c.setTagURL, tagPayload{friendPlayFabID, playFabID, tagReceivePending}); err != nil {
		return fmt.Errorf("set receive-pending tag: %w", err)
	}
	return nil
}

// ConfirmFriend replaces the pending tags with Confirm on both directions.
func (c *PlayFabClient) ConfirmFriend(ctx context.Context, playFabID, friendPlayFabID string) error {
	if err := c.post(ctx, c.setTagURL, tagPayload{playFabID, friendPlayFabID, tagConfirm}); err != nil {
		return fmt.Errorf("set confirm tag: %w", err)
	}
	if err := c.post(ctx, c.setTagURL, tagPayload{friendPlayFabID, playFabID, tagConfirm}); err != nil {
		return fmt.Errorf("set confirm tag reverse: %w", err)
	}
	return nil
}

// RemoveFriend deletes both directions of the relation.
func (c *PlayFabClient) RemoveFriend(ctx context.Context, playFabID, friendPlayFabID string) error {
	if err := c.post(ctx, c.removeFriendURL, friendPayload{playFabID, friendPlayFabID}); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	if err := c.post(ctx, c.removeFriendURL, friendPayload{friendPlayFabID, playFabID}); err != nil {
		return fmt.Errorf("remove friend reverse: %w", err)
	}
	return nil
}

// post sends one JSON request with the title secret key header and fails on
// any non-2xx status.
func (c *PlayFabClient) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SecretKey", c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("playfab returned %d: %s", resp.StatusCode, data)
	}
	return nil
}
