package ensemble

import (
	"math"

	"offerctr/domain/core"
)

// Combine reduces per-model scores to one probability by weighted arithmetic
// mean. Weights are normalized to sum 1; a nil or empty weight map means
// equal weighting. Every score must lie in [0,1], which makes the convex
// combination land in [0,1] without clamping.
//
// An empty score map fails with ErrEmptyEnsemble: averaging nothing is not
// 0.5, it is a broken run.
func Combine(scores map[core.ModelID]float64, weights map[core.ModelID]float64) (float64, error) {
	if len(scores) == 0 {
		return 0, core.ErrEmptyEnsemble
	}

	var weightSum float64
	for id, score := range scores {
		if math.IsNaN(score) || score < 0 || score > 1 {
			return 0, core.NewInvalidStatisticError("score for "+id.String(), "outside [0,1]")
		}
		w := memberWeight(weights, id)
		if w < 0 {
			return 0, core.NewInvalidStatisticError("weight for "+id.String(), "is negative")
		}
		weightSum += w
	}
	if weightSum == 0 {
		return 0, core.NewInvalidStatisticError("weights", "sum to zero")
	}

	var combined float64
	for id, score := range scores {
		combined += score * memberWeight(weights, id) / weightSum
	}
	return combined, nil
}

func memberWeight(weights map[core.ModelID]float64, id core.ModelID) float64 {
	if weights == nil {
		return 1
	}
	if w, ok := weights[id]; ok {
		return w
	}
	return 1
}
