package store

import (
	"context"
	"fmt"
)

// migrations are applied in order at startup. Statements are idempotent so
// restarts are safe; there is no down path.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		token      TEXT NOT NULL UNIQUE,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id)`,

	`CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at)`,

	`CREATE TABLE IF NOT EXISTS user_integrations (
		id                        TEXT PRIMARY KEY,
		user_id                   TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		google_calendar_enabled   BOOLEAN NOT NULL DEFAULT false,
		gmail_enabled             BOOLEAN NOT NULL DEFAULT false,
		google_access_token       TEXT,
		google_refresh_token      TEXT,
		google_token_expires_at   TIMESTAMPTZ,
		outlook_enabled           BOOLEAN NOT NULL DEFAULT false,
		outlook_access_token      TEXT,
		outlook_refresh_token     TEXT,
		outlook_token_expires_at  TIMESTAMPTZ,
		settings                  JSONB,
		created_at                TIMESTAMPTZ NOT NULL,
		updated_at                TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies the schema to the connected database.
func Migrate(ctx context.Context, db Querier) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
