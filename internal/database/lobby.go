// internal/database/lobby.go
package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LobbyRow is one row of the lobbies table, used when rebuilding the
// in-memory store at startup.
type LobbyRow struct {
	ID      uuid.UUID
	Leader  string
	Players []string
}

// AddLobby mirrors a freshly created lobby.
func (m *Mirror) AddLobby(ctx context.Context, id uuid.UUID, leader string, players []string) {
	if !m.Enabled() {
		return
	}
	q := `INSERT INTO lobbies (id, leader, players) VALUES ($1, $2, $3)`
	err := pgx.BeginTxFunc(ctx, m.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, id, leader, players)
		return err
	})
	if err != nil {
		m.log.Warnf("mirror: failed to add lobby %s: %v", id, err)
	}
}

// AddPlayerToLobby appends a username to a lobby's players array.
func (m *Mirror) AddPlayerToLobby(ctx context.Context, id uuid.UUID, username string) {
	if !m.Enabled() {
		return
	}
	q := `UPDATE lobbies SET players = array_append(players, $2) WHERE id = $1`
	if _, err := m.pool.Exec(ctx, q, id, username); err != nil {
		m.log.Warnf("mirror: failed to add %s to lobby %s: %v", username, id, err)
	}
}

// RemovePlayerFromLobby removes a username from a lobby's players array.
func (m *Mirror) RemovePlayerFromLobby(ctx context.Context, id uuid.UUID, username string) {
	if !m.Enabled() {
		return
	}
	q := `UPDATE lobbies SET players = array_remove(players, $2) WHERE id = $1`
	if _, err := m.pool.Exec(ctx, q, id, username); err != nil {
		m.log.Warnf("mirror: failed to remove %s from lobby %s: %v", username, id, err)
	}
}

// DeleteLobby removes a mirrored lobby row.
func (m *Mirror) DeleteLobby(ctx context.Context, id uuid.UUID) {
	if !m.Enabled() {
		return
	}
	if _, err := m.pool.Exec(ctx, `DELETE FROM lobbies WHERE id=$1`, id); err != nil {
		m.log.Warnf("mirror: failed to delete lobby %s: %v", id, err)
	}
}

// RebuildLobbies reads every mirrored lobby so the in-memory store can be
// repopulated after a restart. Failure yields an empty slice; the server
// starts cold rather than refusing to start.
func (m *Mirror) RebuildLobbies(ctx context.Context) []LobbyRow {
	if !m.Enabled() {
		return nil
	}
	rows, err := m.pool.Query(ctx, `SELECT id, leader, players FROM lobbies`)
	if err != nil {
		m.log.Warnf("mirror: failed to rebuild lobbies: %v", err)
		return nil
	}
	defer rows.Close()

	var out []LobbyRow
	for rows.Next() {
		var r LobbyRow
		if err := rows.Scan(&r.ID, &r.Leader, &r.Players); err != nil {
			m.log.Warnf("mirror: failed to scan lobby row: %v", err)
			return out
		}
		out = append(out, r)
	}
	return out
}
