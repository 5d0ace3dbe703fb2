package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema bootstrap, applied on startup; all statements are idempotent
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            SERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name     TEXT,
		role          TEXT NOT NULL DEFAULT 'user',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS workout_plan (
		id             SERIAL PRIMARY KEY,
		title          TEXT NOT NULL,
		description    TEXT,
		difficulty     TEXT,
		duration_weeks INT,
		is_public      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ,
		owner_id       INT NOT NULL REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS exercise (
		id              SERIAL PRIMARY KEY,
		name            TEXT NOT NULL,
		description     TEXT,
		sets            INT,
		reps            TEXT,
		rest_seconds    INT,
		ord             INT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		workout_plan_id INT NOT NULL REFERENCES workout_plan(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS workout_plan_owner_id_idx ON workout_plan (owner_id);`,
	`CREATE INDEX IF NOT EXISTS workout_plan_is_public_idx ON workout_plan (is_public);`,
	`CREATE INDEX IF NOT EXISTS exercise_workout_plan_id_idx ON exercise (workout_plan_id);`,
}

// Bootstrap creates the schema objects if not present.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
