// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the server reads from the environment. Load it
// once in main and pass it down; packages never read env vars themselves.
type Config struct {
	ListenAddr string

	// Postgres mirror. Leave PGHost empty to run without the mirror.
	PGHost     string
	PGPort     string
	PGUser     string
	PGPassword string
	PGDatabase string

	// Redis event queue. Leave RedisAddr empty to disable event publishing.
	RedisAddr  string
	RedisDB    int
	EventQueue string

	// PlayFab collaborators.
	PlayFabBaseURL      string
	PlayFabSecret       string
	PlayFabAddFriendURL string
	PlayFabSetTagURL    string

	// Matchmaking workflow.
	MatchPollInterval time.Duration
	MatchPollLimit    int

	// Game server launch.
	GameServerBinary string
	GameServerHost   string
	PortRangeStart   int
	PortRangeEnd     int
}

// Load reads the full configuration from the environment, applying defaults
// for anything unset.
func Load() Config {
	return Config{
		ListenAddr: ":" + getEnv("PORT", "8080"),

		PGHost:     os.Getenv("PG_HOST"),
		PGPort:     getEnv("PG_PORT", "5432"),
		PGUser:     os.Getenv("POSTGRES_USER"),
		PGPassword: os.Getenv("POSTGRES_PASSWORD"),
		PGDatabase: os.Getenv("PG_DATABASE"),

		RedisAddr:  os.Getenv("REDIS_ADDR"),
		RedisDB:    getEnvInt("REDIS_DB", 0),
		EventQueue: getEnv("EVENT_QUEUE_NAME", "relay_events"),

		PlayFabBaseURL:      getEnv("PLAYFAB_BASE_URL", ""),
		PlayFabSecret:       os.Getenv("PLAYFAB_SECRET"),
		PlayFabAddFriendURL: os.Getenv("PLAYFAB_ADD_FRIEND_URL"),
		PlayFabSetTagURL:    os.Getenv("PLAYFAB_SET_TAG_URL"),

		MatchPollInterval: getEnvDuration("MATCH_POLL_INTERVAL", 6500*time.Millisecond),
		MatchPollLimit:    getEnvInt("MATCH_POLL_LIMIT", 45),

		GameServerBinary: getEnv("GAME_SERVER_BINARY", "./gameserver"),
		GameServerHost:   getEnv("GAME_SERVER_HOST", "127.0.0.1"),
		PortRangeStart:   getEnvInt("GAME_PORT_START", 7777),
		PortRangeEnd:     getEnvInt("GAME_PORT_END", 7877),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration is a helper to parse an environment variable as a duration, else a default value.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
