package ports

import (
	"context"

	"offerctr/domain/core"
)

// ReaderPort provides read-only access to run history for the report API.
// The API surface cannot write to sinks or mutate statistic state.
type ReaderPort interface {
	// Run queries (read-only)
	ListRuns(ctx context.Context, filters RunFilters) ([]RunSummary, error)
	GetRun(ctx context.Context, runID core.RunID) (*RunManifest, error)

	// Prediction queries (read-only)
	ListPredictions(ctx context.Context, filters PredictionFilters) ([]PredictionRecord, error)

	// Feature contract queries (read-only)
	GetFeatureColumns(ctx context.Context, runID core.RunID) ([]string, error)
}

// RunFilters narrows run listings
type RunFilters struct {
	Status *RunStatus
	Limit  int
	Offset int
}

// PredictionFilters narrows prediction listings
type PredictionFilters struct {
	RunID    *core.RunID
	RecordID *core.RecordID
	Limit    int
	Offset   int
}

// RunSummary is the list view of a run
type RunSummary struct {
	RunID       core.RunID      `json:"run_id"`
	Status      RunStatus       `json:"status"`
	StartedAt   core.Timestamp  `json:"started_at"`
	CompletedAt *core.Timestamp `json:"completed_at,omitempty"`
	Members     int             `json:"members"`
	AUC         *float64        `json:"auc,omitempty"`
}

// PredictionRecord is the stored score for one record
type PredictionRecord struct {
	RunID    core.RunID               `json:"run_id"`
	RecordID core.RecordID            `json:"record_id"`
	Combined float64                  `json:"combined"`
	PerModel map[core.ModelID]float64 `json:"per_model"`
	At       core.Timestamp           `json:"at"`
}
