package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// schemaStatements are idempotent; they run at every start-up.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		pk               TEXT PRIMARY KEY,
		body             TEXT NOT NULL,
		from_number      TEXT NOT NULL DEFAULT '',
		provider         TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL CHECK (status IN ('pending','approved','live','played','rejected','expired')),
		rejection_reason TEXT,
		advisory         JSONB,
		played_at        TIMESTAMPTZ,
		expires_at       TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_status_created_at ON messages (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS moderation_settings (
		config_id                TEXT PRIMARY KEY,
		moderation_mode          TEXT NOT NULL,
		profanity_mode           TEXT NOT NULL,
		max_message_length       INTEGER NOT NULL CHECK (max_message_length > 0),
		hard_banned_words        TEXT[] NOT NULL DEFAULT '{}',
		soft_banned_words        TEXT[] NOT NULL DEFAULT '{}',
		scroll_behavior          TEXT NOT NULL,
		display_mode             TEXT NOT NULL,
		message_lifespan_seconds INTEGER NOT NULL CHECK (message_lifespan_seconds > 0),
		screen_muted             BOOLEAN NOT NULL DEFAULT FALSE,
		version                  BIGINT NOT NULL DEFAULT 0,
		updated_at               TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the messages and moderation_settings tables if missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}
	return nil
}
