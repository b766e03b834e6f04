package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"offerctr/domain/core"
	"offerctr/domain/ensemble"
	"offerctr/ports"
)

// rejectSink implements the RejectSinkPort
type rejectSink struct {
	db *sqlx.DB
}

// NewRejectSink creates a reject sink backed by PostgreSQL
func NewRejectSink(db *sqlx.DB) ports.RejectSinkPort {
	return &rejectSink{db: db}
}

// WriteRejects inserts rejected records in one transaction
func (s *rejectSink) WriteRejects(ctx context.Context, runID core.RunID, rejects []core.RejectedRecord) error {
	if len(rejects) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO rejected_records (run_id, record_id, event_at, stage, reason)
		VALUES ($1, $2, $3, $4, $5)`

	for _, rej := range rejects {
		var at interface{}
		if !rej.At.IsZero() {
			at = rej.At.Time()
		}
		if _, err := tx.ExecContext(ctx, query, runID, rej.RecordID, at, rej.Stage, rej.Reason); err != nil {
			return fmt.Errorf("failed to insert reject for %s: %w", rej.RecordID, err)
		}
	}

	return tx.Commit()
}

// predictionSink implements the PredictionSinkPort
type predictionSink struct {
	db *sqlx.DB
}

// NewPredictionSink creates a prediction sink backed by PostgreSQL
func NewPredictionSink(db *sqlx.DB) ports.PredictionSinkPort {
	return &predictionSink{db: db}
}

// WritePredictions upserts scored records. Rescoring a record under the
// same run replaces its previous score.
func (s *predictionSink) WritePredictions(ctx context.Context, runID core.RunID, predictions []ensemble.Prediction) error {
	if len(predictions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO predictions (run_id, record_id, combined, per_model, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, record_id) DO UPDATE
		SET combined = EXCLUDED.combined, per_model = EXCLUDED.per_model, created_at = EXCLUDED.created_at`

	now := time.Now().UTC()
	for _, pred := range predictions {
		perModelJSON, err := json.Marshal(pred.PerModel)
		if err != nil {
			return fmt.Errorf("failed to marshal per-model scores: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, runID, pred.RecordID, pred.Combined, perModelJSON, now); err != nil {
			return fmt.Errorf("failed to insert prediction for %s: %w", pred.RecordID, err)
		}
	}

	return tx.Commit()
}
