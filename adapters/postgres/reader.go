package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"offerctr/domain/core"
	"offerctr/ports"
)

// reader implements the read-only ReaderPort for the report API
type reader struct {
	db *sqlx.DB
}

// NewReader creates a read-only view over run history
func NewReader(db *sqlx.DB) ports.ReaderPort {
	return &reader{db: db}
}

// ListRuns returns run summaries, newest first
func (r *reader) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT run_id, status, started_at, completed_at, members, metrics
		FROM runs`
	args := []interface{}{}
	if filters.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *filters.Status)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d OFFSET %d`, limit, filters.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var summaries []ports.RunSummary
	for rows.Next() {
		var s ports.RunSummary
		var startedAt, completed sql.NullTime
		var membersJSON []byte
		var metricsJSON sql.NullString

		if err := rows.Scan(&s.RunID, &s.Status, &startedAt, &completed, &membersJSON, &metricsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		if startedAt.Valid {
			s.StartedAt = core.NewTimestamp(startedAt.Time.UTC())
		}
		if completed.Valid {
			ts := core.NewTimestamp(completed.Time.UTC())
			s.CompletedAt = &ts
		}
		var members []core.ModelID
		if err := json.Unmarshal(membersJSON, &members); err != nil {
			return nil, fmt.Errorf("failed to unmarshal members: %w", err)
		}
		s.Members = len(members)
		if metricsJSON.Valid && metricsJSON.String != "" {
			var metrics ports.RunMetrics
			if err := json.Unmarshal([]byte(metricsJSON.String), &metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
			}
			s.AUC = &metrics.AUC
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// GetRun returns one full run manifest
func (r *reader) GetRun(ctx context.Context, runID core.RunID) (*ports.RunManifest, error) {
	query := `SELECT run_id, status, started_at, completed_at, config_hash, schema_hash,
		columns, members, resample_name, counts, metrics, failure_reason
	FROM runs WHERE run_id = $1`

	return scanManifest(r.db.QueryRowxContext(ctx, query, runID))
}

// ListPredictions returns stored scores
func (r *reader) ListPredictions(ctx context.Context, filters ports.PredictionFilters) ([]ports.PredictionRecord, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT run_id, record_id, combined, per_model, created_at FROM predictions`
	var conds []string
	var args []interface{}
	if filters.RunID != nil {
		args = append(args, *filters.RunID)
		conds = append(conds, fmt.Sprintf("run_id = $%d", len(args)))
	}
	if filters.RecordID != nil {
		args = append(args, *filters.RecordID)
		conds = append(conds, fmt.Sprintf("record_id = $%d", len(args)))
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, filters.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var records []ports.PredictionRecord
	for rows.Next() {
		var rec ports.PredictionRecord
		var perModelJSON []byte
		var createdAt sql.NullTime

		if err := rows.Scan(&rec.RunID, &rec.RecordID, &rec.Combined, &perModelJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if err := json.Unmarshal(perModelJSON, &rec.PerModel); err != nil {
			return nil, fmt.Errorf("failed to unmarshal per-model scores: %w", err)
		}
		if createdAt.Valid {
			rec.At = core.NewTimestamp(createdAt.Time.UTC())
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetFeatureColumns returns the frozen column contract of a run
func (r *reader) GetFeatureColumns(ctx context.Context, runID core.RunID) ([]string, error) {
	var columnsJSON []byte
	err := r.db.QueryRowContext(ctx, `SELECT columns FROM runs WHERE run_id = $1`, runID).Scan(&columnsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get feature columns: %w", err)
	}

	var columns []string
	if err := json.Unmarshal(columnsJSON, &columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal columns: %w", err)
	}
	return columns, nil
}
