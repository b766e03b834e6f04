package ports

import (
	"context"

	"offerctr/domain/core"
	"offerctr/domain/ensemble"
)

// RejectSinkPort persists per-record rejections for audit. Rejects are data
// problems, not pipeline failures; the sink keeps them visible without
// stopping the run.
type RejectSinkPort interface {
	WriteRejects(ctx context.Context, runID core.RunID, rejects []core.RejectedRecord) error
}

// PredictionSinkPort persists scored records, one row per record with the
// per-model breakdown alongside the combined score
type PredictionSinkPort interface {
	WritePredictions(ctx context.Context, runID core.RunID, predictions []ensemble.Prediction) error
}
