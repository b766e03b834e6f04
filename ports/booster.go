package ports

import (
	"context"

	"offerctr/domain/ensemble"
	"offerctr/domain/feature"
)

// BoosterPort fits one gradient-boosted model. Fits must be deterministic
// for a fixed config, seed and training set; the ensemble relies on that to
// make reruns reproducible.
type BoosterPort interface {
	Fit(ctx context.Context, req FitRequest) (FittedModel, error)
}

// FitRequest carries one member's training inputs
type FitRequest struct {
	Matrix *feature.Matrix
	Labels []float64
	Config ensemble.ModelConfig
	Seed   int64
}

// FittedModel scores rows against a trained model. PredictRow satisfies the
// ensemble's per-row contract; Predict scores a whole matrix in row order.
// Scores are probabilities in [0,1].
type FittedModel interface {
	ensemble.Model
	Predict(m *feature.Matrix) []float64
	Rounds() int
}
