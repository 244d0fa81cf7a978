// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/arcadehalls/relay/internal/auth"
	"github.com/arcadehalls/relay/internal/broadcast"
	"github.com/arcadehalls/relay/internal/cache"
	"github.com/arcadehalls/relay/internal/config"
	"github.com/arcadehalls/relay/internal/coordinator"
	"github.com/arcadehalls/relay/internal/database"
	"github.com/arcadehalls/relay/internal/gameserver"
	"github.com/arcadehalls/relay/internal/handlers"
	"github.com/arcadehalls/relay/internal/lobby"
	"github.com/arcadehalls/relay/internal/matchmaking"
	"github.com/arcadehalls/relay/internal/middleware"
	"github.com/arcadehalls/relay/internal/session"
	"github.com/arcadehalls/relay/internal/social"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load()
	ctx := context.Background()

	mirror, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer mirror.Close()

	events, err := cache.Connect(cfg.RedisAddr, cfg.RedisDB, cfg.EventQueue, logger)
	if err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer events.Close()

	authSvc, err := auth.NewService(72 * time.Hour)
	if err != nil {
		logger.Fatalf("failed to init auth service: %v", err)
	}

	registry := session.NewRegistry()
	store := lobby.NewStore()
	cast := broadcast.NewEngine(registry)
	coord := coordinator.New(registry, store, cast, mirror, events, logger)
	coord.RebuildFromMirror(ctx)

	orchestrator := &matchmaking.Orchestrator{
		Client:     matchmaking.NewPlayFabClient(cfg),
		Ports:      gameserver.PortAllocator{Start: cfg.PortRangeStart, End: cfg.PortRangeEnd},
		Spawner:    gameserver.ProcessSpawner{Binary: cfg.GameServerBinary, Log: logger},
		Cast:       cast,
		Events:     events,
		Log:        logger,
		Interval:   cfg.MatchPollInterval,
		MaxPolls:   cfg.MatchPollLimit,
		PublicHost: cfg.GameServerHost,
	}

	srv := &handlers.Server{
		Sessions: registry,
		Lobbies:  store,
		Cast:     cast,
		Coord:    coord,
		Match:    orchestrator,
		Social:   social.NewPlayFabClient(cfg, logger),
		Auth:     authSvc,
		Mirror:   mirror,
		Log:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", handlers.PingHandler)
	mux.HandleFunc("/ws", handlers.WSHandler(logger, srv))
	mux.Handle("/lobbies", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListLobbiesHandler(srv),
	)))

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}
	fmt.Println("shutting down")
}
