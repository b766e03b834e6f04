package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EnsureSchema creates the output tables this adapter writes to. Input
// tables (interactions, offers, transactions) belong to the upstream
// warehouse and are never created here.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			config_hash TEXT NOT NULL,
			schema_hash TEXT NOT NULL,
			columns JSONB NOT NULL,
			members JSONB NOT NULL,
			resample_name TEXT NOT NULL DEFAULT 'none',
			counts JSONB NOT NULL,
			metrics JSONB,
			failure_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			run_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			combined DOUBLE PRECISION NOT NULL,
			per_model JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, record_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rejected_records (
			run_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			event_at TIMESTAMPTZ,
			stage TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions (run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rejected_run ON rejected_records (run_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
