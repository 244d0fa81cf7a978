// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/arcadehalls/relay/internal/config"
)

// Mirror is the best-effort Postgres reflection of the in-memory state. The
// in-memory store is authoritative; every write here may fail without
// affecting the live server, so failures are logged and swallowed.
type Mirror struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// Connect opens a pgx pool from the config. An empty PGHost yields a disabled
// mirror whose operations are all no-ops.
func Connect(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*Mirror, error) {
	if cfg.PGHost == "" {
		logger.Info("PG_HOST not set, running without the database mirror")
		return &Mirror{log: logger}, nil
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.PGUser, cfg.PGPassword, cfg.PGHost, cfg.PGPort, cfg.PGDatabase,
	)
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	logger.Infof("connected to database at %s:%s/%s", cfg.PGHost, cfg.PGPort, cfg.PGDatabase)
	return &Mirror{pool: pool, log: logger}, nil
}

// Enabled reports whether a real pool is backing the mirror.
func (m *Mirror) Enabled() bool {
	return m != nil && m.pool != nil
}

// Close releases the pool.
func (m *Mirror) Close() {
	if m.Enabled() {
		m.pool.Close()
	}
}
