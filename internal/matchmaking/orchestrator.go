// internal/matchmaking/orchestrator.go
package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arcadehalls/relay/internal/broadcast"
	"github.com/arcadehalls/relay/internal/cache"
	"github.com/arcadehalls/relay/internal/gameserver"
	"github.com/arcadehalls/relay/internal/lobby"
	"github.com/arcadehalls/relay/internal/protocol"
	"github.com/arcadehalls/relay/internal/session"
)

// DefaultPollInterval is the fixed ticket-poll cadence.
const DefaultPollInterval = 6500 * time.Millisecond

// DefaultPollLimit bounds the poll loop so an abandoned ticket cannot leak a
// goroutine forever.
const DefaultPollLimit = 45

// Orchestrator drives the full matchmaking round for one lobby: entity token,
// ticket creation, status polling, member resolution, port allocation, and
// game-server spawn. One Run per GET_MATCH, on its own goroutine, with a
// context derived from the owning lobby so destroying the lobby cancels the
// round. No step rolls back an earlier one; a created ticket is never
// cancelled upstream.
type Orchestrator struct {
	Client   Client
	Ports    gameserver.Allocator
	Spawner  gameserver.Spawner
	Cast     *broadcast.Engine
	Events   *cache.Publisher
	Log      *logrus.Logger
	Interval time.Duration
	MaxPolls int

	// PublicHost is the address handed to matched players.
	PublicHost string
}

// Run executes the workflow. The requester gets an ERROR or MATCH_PENDING
// reply tied to the triggering message; terminal failures after that are
// broadcast to the lobby as MATCH_ERROR.
func (o *Orchestrator) Run(ctx context.Context, lob *lobby.Lobby, queueID string, requester *session.Session) {
	interval := o.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxPolls := o.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultPollLimit
	}

	token, err := o.Client.GetEntityToken(ctx)
	if err != nil {
		o.Log.Warnf("matchmaking: entity token failed for lobby %s: %v", lob.ID, err)
		requester.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "matchmaking authentication failed"})
		return
	}

	lob.Mu.Lock()
	members := lob.SeatHoldersUnsafe()
	lob.Mu.Unlock()
	if len(members) == 0 {
		requester.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "lobby has no seated players"})
		return
	}

	ticketID, err := o.Client.CreateTicket(ctx, token, queueID, members)
	if err != nil {
		o.Log.Warnf("matchmaking: ticket creation failed for lobby %s: %v", lob.ID, err)
		requester.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "failed to create matchmaking ticket"})
		return
	}
	requester.Write(protocol.MatchPending{Type: protocol.TypeMatchPending, TicketID: ticketID})

	matchID, err := o.pollTicket(ctx, token, queueID, ticketID, interval, maxPolls)
	if err != nil {
		o.Log.Warnf("matchmaking: ticket %s aborted for lobby %s: %v", ticketID, lob.ID, err)
		o.Cast.Lobby(protocol.MatchError{Type: protocol.TypeMatchError, Message: err.Error()}, lob, broadcast.SystemSender)
		return
	}

	matched, err := o.Client.GetMatch(ctx, token, queueID, matchID)
	if err != nil {
		o.Log.Warnf("matchmaking: member resolution failed for match %s: %v", matchID, err)
		o.Cast.Lobby(protocol.MatchError{Type: protocol.TypeMatchError, Message: "failed to resolve match members"}, lob, broadcast.SystemSender)
		return
	}

	port, err := o.Ports.Allocate()
	if err != nil {
		o.Log.Warnf("matchmaking: port allocation failed for match %s: %v", matchID, err)
		o.Cast.Lobby(protocol.MatchError{Type: protocol.TypeMatchError, Message: "no game server capacity"}, lob, broadcast.SystemSender)
		return
	}

	if err := o.Spawner.Spawn(ctx, port); err != nil {
		o.Log.Errorf("matchmaking: spawn failed for match %s on port %d: %v", matchID, port, err)
		o.Cast.Lobby(protocol.MatchError{Type: protocol.TypeMatchError, Message: "game server failed to start"}, lob, broadcast.SystemSender)
		return
	}

	found := protocol.MatchFound{Type: protocol.TypeMatchFound, Address: o.PublicHost, Port: port}
	delivered := 0
	for _, name := range matched {
		if o.Cast.ToUser(name, found) {
			delivered++
		}
	}
	o.Log.Infof("matchmaking: match %s started on port %d, notified %d/%d members",
		matchID, port, delivered, len(matched))
	o.Events.Publish(ctx, cache.Event{
		Type:    cache.EventMatchStarted,
		LobbyID: lob.ID.String(),
		Detail:  fmt.Sprintf("port %d", port),
	})
}

// pollTicket polls on a fixed interval until the ticket is Matched. Any poll
// failure aborts the loop; there are no retries and no backoff. The loop ends
// early if the context dies (lobby destroyed) or the poll ceiling is reached.
func (o *Orchestrator) pollTicket(ctx context.Context, token, queueID, ticketID string, interval time.Duration, maxPolls int) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for polls := 0; polls < maxPolls; {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("matchmaking cancelled: %w", ctx.Err())
		case <-ticker.C:
			polls++
			status, err := o.Client.GetTicket(ctx, token, queueID, ticketID)
			if err != nil {
				return "", fmt.Errorf("ticket poll failed: %w", err)
			}
			switch status.Status {
			case StatusMatched:
				return status.MatchID, nil
			case StatusCanceled:
				return "", fmt.Errorf("ticket was cancelled by the matchmaker")
			}
		}
	}
	return "", fmt.Errorf("no match after %d polls", maxPolls)
}
