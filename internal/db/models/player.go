// Package models holds the rows the API reads from and writes to PostgreSQL.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a game account.
type Player struct {
	ID                 int32      `db:"id"`
	UUID               uuid.UUID  `db:"uuid"`
	Nickname           string     `db:"nickname"`
	CreationTime       time.Time  `db:"creation_time"`
	LastConnectionTime *time.Time `db:"last_connection_time"`
}

// PlayerToken is a bearer token bound to a player. A player may hold
// several.
type PlayerToken struct {
	Token    string `db:"token"`
	PlayerID int32  `db:"player_id"`
}
