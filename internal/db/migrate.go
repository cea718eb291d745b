// Package db owns the database schema. Constraint names matter: the
// repositories translate unique-violation errors into domain conflicts by
// matching on them.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login_at TIMESTAMPTZ,
		CONSTRAINT users_email_unique UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT NOT NULL,
		user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT refresh_tokens_token_unique UNIQUE (token)
	)`,
	`CREATE INDEX IF NOT EXISTS refresh_tokens_user_id_idx ON refresh_tokens (user_id)`,
	`CREATE TABLE IF NOT EXISTS short_links (
		id               UUID PRIMARY KEY,
		slug             TEXT NOT NULL,
		original_url     TEXT NOT NULL,
		user_id          UUID REFERENCES users (id) ON DELETE SET NULL,
		click_count      BIGINT NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_accessed_at TIMESTAMPTZ,
		CONSTRAINT short_links_slug_unique UNIQUE (slug)
	)`,
	`CREATE INDEX IF NOT EXISTS short_links_user_id_idx ON short_links (user_id)`,
}

// Migrate creates the schema if it doesn't exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
