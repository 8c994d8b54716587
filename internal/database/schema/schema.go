// Package schema declares the relay's relational tables. The tables exist at
// the storage boundary only: the hot path never reads or writes them.
package schema

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id         SERIAL PRIMARY KEY,
		username        VARCHAR(50) NOT NULL,
		party_id        INTEGER,
		current_room_id INTEGER,
		state           VARCHAR(20) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lobbies (
		lobby_id   SERIAL PRIMARY KEY,
		lobby_name VARCHAR(50) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id   SERIAL PRIMARY KEY,
		room_name VARCHAR(50),
		state     VARCHAR(20)
	)`,
}

// Ensure creates the declared tables when they are missing.
func Ensure(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema ensure: %w", err)
		}
	}
	return nil
}
