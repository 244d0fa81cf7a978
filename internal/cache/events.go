// internal/cache/events.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Event is one lifecycle record pushed to the Redis queue for the historian
// process. Consumers read the list with BLPOP and persist at their own pace.
type Event struct {
	Type      string `json:"type"`
	LobbyID   string `json:"lobby_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Event types published by the coordinator and the matchmaking orchestrator.
const (
	EventPlayerSubscribed = "player_subscribed"
	EventLobbyCreated     = "lobby_created"
	EventLobbyDestroyed   = "lobby_destroyed"
	EventMatchStarted     = "match_started"
)

// Publisher pushes events onto a Redis list, best effort. A nil client means
// publishing is disabled and Publish is a no-op.
type Publisher struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// Connect initializes the publisher. An empty addr disables publishing.
func Connect(addr string, db int, queue string, logger *logrus.Logger) (*Publisher, error) {
	if addr == "" {
		logger.Info("REDIS_ADDR not set, running without the event queue")
		return &Publisher{queue: queue, log: logger}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Publisher{rdb: rdb, queue: queue, log: logger}, nil
}

// Publish serializes the event and RPUSHes it onto the queue. Errors are
// logged, never propagated; losing an event must not affect the live server.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.rdb == nil {
		return
	}
	ev.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warnf("events: failed to marshal %s event: %v", ev.Type, err)
		return
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		p.log.Warnf("events: failed to push %s event: %v", ev.Type, err)
	}
}

// Close releases the Redis client.
func (p *Publisher) Close() {
	if p != nil && p.rdb != nil {
		_ = p.rdb.Close()
	}
}
