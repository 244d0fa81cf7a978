// internal/database/player.go
package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNoSuchPlayer is returned by GetPlayerCredentials for an unknown username.
var ErrNoSuchPlayer = errors.New("no such player")

// AddPlayer mirrors a subscribed player into player_data. passwordHash is
// empty for players who never signed up.
func (m *Mirror) AddPlayer(ctx context.Context, id uuid.UUID, username, passwordHash string) {
	if !m.Enabled() {
		return
	}
	q := `
		INSERT INTO player_data (id, username, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (username)
		DO UPDATE SET password_hash = EXCLUDED.password_hash
	`
	if _, err := m.pool.Exec(ctx, q, id, username, passwordHash); err != nil {
		m.log.Warnf("mirror: failed to add player %s: %v", username, err)
	}
}

// DeletePlayer removes a player row on disconnect.
func (m *Mirror) DeletePlayer(ctx context.Context, id uuid.UUID) {
	if !m.Enabled() {
		return
	}
	if _, err := m.pool.Exec(ctx, `DELETE FROM player_data WHERE id=$1`, id); err != nil {
		m.log.Warnf("mirror: failed to delete player %s: %v", id, err)
	}
}

// PlayerExists checks whether a username has a mirrored row. Unlike the
// write paths this returns its error: callers using it for credential lookup
// need to distinguish "absent" from "mirror down".
func (m *Mirror) PlayerExists(ctx context.Context, username string) (bool, error) {
	if !m.Enabled() {
		return false, nil
	}
	var tmp int
	err := m.pool.QueryRow(ctx, `SELECT 1 FROM player_data WHERE username=$1 LIMIT 1`, username).Scan(&tmp)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetPlayerCredentials fetches the stored id and password hash for a username.
func (m *Mirror) GetPlayerCredentials(ctx context.Context, username string) (uuid.UUID, string, error) {
	if !m.Enabled() {
		return uuid.Nil, "", ErrNoSuchPlayer
	}
	var id uuid.UUID
	var hash string
	err := m.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM player_data WHERE username=$1`, username,
	).Scan(&id, &hash)
	if err == pgx.ErrNoRows {
		return uuid.Nil, "", ErrNoSuchPlayer
	}
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, hash, nil
}
