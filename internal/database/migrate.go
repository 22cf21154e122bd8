package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// schema lists the tables the matching pipeline reads and writes. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id               TEXT PRIMARY KEY,
		full_name        TEXT,
		username         TEXT,
		email            TEXT,
		skills           TEXT[] NOT NULL DEFAULT '{}',
		causes           TEXT[] NOT NULL DEFAULT '{}',
		"values"         TEXT[] NOT NULL DEFAULT '{}',
		tags             TEXT[] NOT NULL DEFAULT '{}',
		bio              TEXT,
		fame             TEXT,
		aim              JSONB,
		game             TEXT,
		work_style       TEXT,
		help_needed      TEXT,
		location         JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_active_at   TIMESTAMPTZ,
		matching_opt_out BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_created_at ON profiles (created_at, id)`,
	`CREATE TABLE IF NOT EXISTS match_history (
		user_a_id       TEXT NOT NULL,
		user_b_id       TEXT NOT NULL,
		last_matched_at TIMESTAMPTZ NOT NULL,
		match_count     INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (user_a_id, user_b_id),
		CHECK (user_a_id < user_b_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_history_last_matched_at ON match_history (last_matched_at)`,
}

// Migrate creates the profiles and match_history tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	logger := telemetry.LogFromContext(ctx).WithField("operation", "database_migrate")

	err := db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration statement %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.WithField("statements", len(schema)).Info("Schema is up to date")
	return nil
}
