// Package repositories implements the data access layer. Handlers and
// services never issue SQL directly.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/digitalpulse/tsom-api/internal/db/models"
)

// PlayerRepository handles player and player token queries.
type PlayerRepository struct {
	db *sqlx.DB
}

// NewPlayerRepository creates a new PlayerRepository
func NewPlayerRepository(db *sqlx.DB) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// CreatePlayer inserts a player and its first token in one transaction and
// returns the new player id.
func (r *PlayerRepository) CreatePlayer(ctx context.Context, id uuid.UUID, nickname, token string) (int32, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var playerID int32
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO players(uuid, creation_time, nickname) VALUES($1, NOW(), $2) RETURNING id`,
		id, nickname,
	).Scan(&playerID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert player: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO player_tokens(token, player_id) VALUES($1, $2)`,
		token, playerID,
	); err != nil {
		return 0, fmt.Errorf("failed to insert player token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit player creation: %w", err)
	}
	return playerID, nil
}

// GetPlayerToken looks up a bearer token. It returns nil, nil when the token
// is unknown.
func (r *PlayerRepository) GetPlayerToken(ctx context.Context, token string) (*models.PlayerToken, error) {
	pt := &models.PlayerToken{Token: token}
	err := r.db.GetContext(ctx, &pt.PlayerID, `SELECT player_id FROM player_tokens WHERE token = $1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pt, nil
}

// GetPlayerByID retrieves the identity of a player. It returns nil, nil when
// no player has that id.
func (r *PlayerRepository) GetPlayerByID(ctx context.Context, id int32) (*models.Player, error) {
	player := &models.Player{ID: id}
	err := r.db.QueryRowxContext(ctx, `SELECT uuid, nickname FROM players WHERE id = $1`, id).
		Scan(&player.UUID, &player.Nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return player, nil
}

// UpdateLastConnection stamps the player's last connection time with NOW().
func (r *PlayerRepository) UpdateLastConnection(ctx context.Context, id int32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE players SET last_connection_time = NOW() WHERE id = $1`, id)
	return err
}

// Ping checks the database is reachable.
func (r *PlayerRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
