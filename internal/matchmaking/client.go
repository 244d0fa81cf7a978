// internal/matchmaking/client.go
package matchmaking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arcadehalls/relay/internal/config"
)

// Ticket statuses reported by the matchmaking collaborator.
const (
	StatusMatched  = "Matched"
	StatusCanceled = "Canceled"
)

// TicketStatus is one poll result; MatchID is set once Status is Matched.
type TicketStatus struct {
	Status  string
	MatchID string
}

// Client is the matchmaking collaborator interface. The production
// implementation talks to PlayFab; tests substitute a scripted mock.
type Client interface {
	GetEntityToken(ctx context.Context) (string, error)
	CreateTicket(ctx context.Context, token, queueID string, members []string) (string, error)
	GetTicket(ctx context.Context, token, queueID, ticketID string) (TicketStatus, error)
	GetMatch(ctx context.Context, token, queueID, matchID string) ([]string, error)
}

// PlayFabClient implements Client against the PlayFab multiplayer API.
type PlayFabClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewPlayFabClient builds the client from config.
func NewPlayFabClient(cfg config.Config) *PlayFabClient {
	return &PlayFabClient{
		baseURL: cfg.PlayFabBaseURL,
		secret:  cfg.PlayFabSecret,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type entityKey struct {
	ID   string `json:"Id"`
	Type string `json:"Type"`
}

type ticketMember struct {
	Entity entityKey `json:"Entity"`
}

// GetEntityToken exchanges the title secret for a short-lived entity token.
func (c *PlayFabClient) GetEntityToken(ctx context.Context) (string, error) {
	var out struct {
		Data struct {
			EntityToken string `json:"EntityToken"`
		} `json:"data"`
	}
	err := c.post(ctx, "/Authentication/GetEntityToken", "X-SecretKey", c.secret,
		map[string]any{}, &out)
	if err != nil {
		return "", fmt.Errorf("get entity token: %w", err)
	}
	return out.Data.EntityToken, nil
}

// CreateTicket submits one ticket covering every member.
func (c *PlayFabClient) CreateTicket(ctx context.Context, token, queueID string, members []string) (string, error) {
	if len(members) == 0 {
		return "", fmt.Errorf("create ticket: no members to match")
	}
	ms := make([]ticketMember, 0, len(members))
	for _, m := range members {
		ms = append(ms, ticketMember{Entity: entityKey{ID: m, Type: "title_player_account"}})
	}
	var out struct {
		Data struct {
			TicketID string `json:"TicketId"`
		} `json:"data"`
	}
	err := c.post(ctx, "/Match/CreateMatchmakingTicket", "X-EntityToken", token, map[string]any{
		"QueueName":          queueID,
		"GiveUpAfterSeconds": 300,
		"Creator":            ms[0],
		"MembersToMatchWith": ms[1:],
	}, &out)
	if err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}
	return out.Data.TicketID, nil
}

// GetTicket polls ticket state.
func (c *PlayFabClient) GetTicket(ctx context.Context, token, queueID, ticketID string) (TicketStatus, error) {
	var out struct {
		Data struct {
			Status  string `json:"Status"`
			MatchID string `json:"MatchId"`
		} `json:"data"`
	}
	err := c.post(ctx, "/Match/GetMatchmakingTicket", "X-EntityToken", token, map[string]any{
		"QueueName": queueID,
		"TicketId":  ticketID,
	}, &out)
	if err != nil {
		return TicketStatus{}, fmt.Errorf("get ticket: %w", err)
	}
	return TicketStatus{Status: out.Data.Status, MatchID: out.Data.MatchID}, nil
}

// GetMatch resolves the authoritative member list of a completed match.
func (c *PlayFabClient) GetMatch(ctx context.Context, token, queueID, matchID string) ([]string, error) {
	var out struct {
		Data struct {
			Members []ticketMember `json:"Members"`
		} `json:"data"`
	}
	err := c.post(ctx, "/Match/GetMatch", "X-EntityToken", token, map[string]any{
		"QueueName": queueID,
		"MatchId":   matchID,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	members := make([]string, 0, len(out.Data.Members))
	for _, m := range out.Data.Members {
		members = append(members, m.Entity.ID)
	}
	return members, nil
}

func (c *PlayFabClient) post(ctx context.Context, path, authHeader, authValue string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, authValue)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("playfab returned %d: %s", resp.StatusCode, data)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
