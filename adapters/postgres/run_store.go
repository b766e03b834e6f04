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

// runStore implements the RunStorePort
type runStore struct {
	db *sqlx.DB
}

// NewRunStore creates a run manifest store backed by PostgreSQL
func NewRunStore(db *sqlx.DB) ports.RunStorePort {
	return &runStore{db: db}
}

// SaveManifest inserts a new run manifest
func (s *runStore) SaveManifest(ctx context.Context, manifest ports.RunManifest) error {
	columnsJSON, membersJSON, countsJSON, metricsJSON, err := marshalManifest(manifest)
	if err != nil {
		return err
	}

	query := `INSERT INTO runs (
		run_id, status, started_at, completed_at, config_hash, schema_hash,
		columns, members, resample_name, counts, metrics, failure_reason
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		manifest.RunID, manifest.Status, manifest.StartedAt.Time(), completedAt(manifest),
		manifest.ConfigHash, manifest.SchemaHash, columnsJSON, membersJSON,
		manifest.ResampleName, countsJSON, metricsJSON, manifest.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to save run manifest: %w", err)
	}
	return nil
}

// UpdateManifest rewrites an existing run manifest
func (s *runStore) UpdateManifest(ctx context.Context, manifest ports.RunManifest) error {
	columnsJSON, membersJSON, countsJSON, metricsJSON, err := marshalManifest(manifest)
	if err != nil {
		return err
	}

	query := `UPDATE runs SET
		status = $2, completed_at = $3, config_hash = $4, schema_hash = $5,
		columns = $6, members = $7, resample_name = $8, counts = $9,
		metrics = $10, failure_reason = $11
	WHERE run_id = $1`

	result, err := s.db.ExecContext(ctx, query,
		manifest.RunID, manifest.Status, completedAt(manifest), manifest.ConfigHash,
		manifest.SchemaHash, columnsJSON, membersJSON, manifest.ResampleName,
		countsJSON, metricsJSON, manifest.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to update run manifest: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, manifest.RunID)
	}
	return nil
}

// GetManifest retrieves one run manifest
func (s *runStore) GetManifest(ctx context.Context, runID core.RunID) (*ports.RunManifest, error) {
	query := `SELECT run_id, status, started_at, completed_at, config_hash, schema_hash,
		columns, members, resample_name, counts, metrics, failure_reason
	FROM runs WHERE run_id = $1`

	return scanManifest(s.db.QueryRowxContext(ctx, query, runID))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanManifest(row rowScanner) (*ports.RunManifest, error) {
	var m ports.RunManifest
	var startedAt sql.NullTime
	var completed sql.NullTime
	var columnsJSON, membersJSON, countsJSON []byte
	var metricsJSON sql.NullString

	err := row.Scan(
		&m.RunID, &m.Status, &startedAt, &completed, &m.ConfigHash, &m.SchemaHash,
		&columnsJSON, &membersJSON, &m.ResampleName, &countsJSON, &metricsJSON, &m.FailureReason,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to scan run manifest: %w", err)
	}

	if startedAt.Valid {
		m.StartedAt = core.NewTimestamp(startedAt.Time.UTC())
	}
	if completed.Valid {
		ts := core.NewTimestamp(completed.Time.UTC())
		m.CompletedAt = &ts
	}
	if err := json.Unmarshal(columnsJSON, &m.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal columns: %w", err)
	}
	if err := json.Unmarshal(membersJSON, &m.Members); err != nil {
		return nil, fmt.Errorf("failed to unmarshal members: %w", err)
	}
	if err := json.Unmarshal(countsJSON, &m.Counts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counts: %w", err)
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		m.Metrics = &ports.RunMetrics{}
		if err := json.Unmarshal([]byte(metricsJSON.String), m.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}
	return &m, nil
}

func marshalManifest(m ports.RunManifest) (columns, members, counts []byte, metrics interface{}, err error) {
	columns, err = json.Marshal(m.Columns)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal columns: %w", err)
	}
	members, err = json.Marshal(m.Members)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal members: %w", err)
	}
	counts, err = json.Marshal(m.Counts)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal counts: %w", err)
	}
	if m.Metrics != nil {
		var metricsJSON []byte
		metricsJSON, err = json.Marshal(m.Metrics)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal metrics: %w", err)
		}
		metrics = metricsJSON
	}
	return columns, members, counts, metrics, nil
}

func completedAt(m ports.RunManifest) interface{} {
	if m.CompletedAt == nil {
		return nil
	}
	return m.CompletedAt.Time()
}
