package app

import (
	"context"
	"fmt"

	"offerctr/domain/core"
	"offerctr/domain/ensemble"
	"offerctr/domain/feature"
	"offerctr/domain/table"
	"offerctr/internal"
	"offerctr/internal/metrics"
	"offerctr/ports"
)

// ScoreService scores unlabeled interaction batches against a trained
// artifact. Statistics stay frozen at the training watermark; the schema
// contract is re-verified against the run manifest before any row moves.
type ScoreService struct {
	predictions ports.PredictionSinkPort
	rejectSink  ports.RejectSinkPort
	runs        ports.RunStorePort
	logger      *internal.Logger
}

// NewScoreService creates a scoring service
func NewScoreService(
	predictions ports.PredictionSinkPort,
	rejectSink ports.RejectSinkPort,
	runs ports.RunStorePort,
) *ScoreService {
	return &ScoreService{
		predictions: predictions,
		rejectSink:  rejectSink,
		runs:        runs,
		logger:      internal.NewDefaultLogger().Component("score"),
	}
}

// ScoreRequest carries one unlabeled batch and the artifact to score with
type ScoreRequest struct {
	Artifact *TrainedArtifact
	Batch    *table.Batch
}

// ScoreResult is the outcome of scoring one batch
type ScoreResult struct {
	RunID       core.RunID            `json:"run_id"`
	Predictions []ensemble.Prediction `json:"predictions"`
	Rejected    int                   `json:"rejected"`
}

// Score featurizes the batch at the frozen statistic state, applies the
// training-time column selection and scores every row with the full
// ensemble. Per-record failures become rejects; schema drift fails the
// whole call.
func (s *ScoreService) Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	artifact := req.Artifact
	if artifact == nil {
		return nil, fmt.Errorf("score request carries no trained artifact")
	}
	if req.Batch == nil || req.Batch.Rows() == 0 {
		return nil, fmt.Errorf("score request carries no rows")
	}

	manifest, err := s.runs.GetManifest(ctx, artifact.RunID)
	if err != nil {
		return nil, fmt.Errorf("loading run manifest: %w", err)
	}
	if manifest.Status != ports.RunCompleted {
		return nil, fmt.Errorf("run %s is %s, not completed", artifact.RunID, manifest.Status)
	}
	if artifact.SchemaHash != manifest.SchemaHash {
		return nil, core.NewSchemaMismatchError(fmt.Sprintf(
			"artifact schema %s does not match run %s manifest schema %s",
			artifact.SchemaHash, artifact.RunID, manifest.SchemaHash))
	}
	for _, m := range artifact.Members {
		if m.SchemaHash != artifact.SchemaHash {
			return nil, core.NewSchemaMismatchError(fmt.Sprintf(
				"member %s was trained under schema %s, artifact carries %s",
				m.ID, m.SchemaHash, artifact.SchemaHash))
		}
	}

	matrix, rejects, err := artifact.Assembler.FeaturizeAt(req.Batch)
	if err != nil {
		return nil, fmt.Errorf("featurizing batch: %w", err)
	}
	if len(rejects) > 0 {
		for _, r := range rejects {
			metrics.RecordRowsRejected(r.Stage, 1)
		}
		if err := s.rejectSink.WriteRejects(ctx, artifact.RunID, rejects); err != nil {
			s.logger.Warn("writing %d rejects failed: %v", len(rejects), err)
		}
	}
	if matrix.Len() == 0 {
		return &ScoreResult{RunID: artifact.RunID, Rejected: len(rejects)}, nil
	}

	projected, err := artifact.Selection.Apply(matrix)
	if err != nil {
		return nil, err
	}

	predictions, _, err := scoreRows(projected, artifact.Members, artifact.Weights)
	if err != nil {
		return nil, err
	}

	if err := s.predictions.WritePredictions(ctx, artifact.RunID, predictions); err != nil {
		return nil, fmt.Errorf("writing predictions: %w", err)
	}
	metrics.RecordPredictionsWritten(len(predictions))
	s.logger.Info("scored %d rows for run %s, %d rejected", len(predictions), artifact.RunID, len(rejects))

	return &ScoreResult{
		RunID:       artifact.RunID,
		Predictions: predictions,
		Rejected:    len(rejects),
	}, nil
}

// scoreRows scores every matrix row with every member and combines per row.
// Returns the full prediction records and the combined vector in row order.
func scoreRows(
	m *feature.Matrix,
	members []ensemble.Member,
	weights map[core.ModelID]float64,
) ([]ensemble.Prediction, []float64, error) {
	predictions := make([]ensemble.Prediction, m.Len())
	combined := make([]float64, m.Len())

	for r, row := range m.Rows {
		perModel := make(map[core.ModelID]float64, len(members))
		for _, member := range members {
			perModel[member.ID] = member.Model.PredictRow(row)
		}
		score, err := ensemble.Combine(perModel, weights)
		if err != nil {
			return nil, nil, fmt.Errorf("combining scores for %s: %w", m.RecordIDs[r], err)
		}
		predictions[r] = ensemble.Prediction{
			RecordID: m.RecordIDs[r],
			PerModel: perModel,
			Combined: score,
		}
		combined[r] = score
	}
	return predictions, combined, nil
}
