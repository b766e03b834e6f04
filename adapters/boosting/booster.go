// Package boosting is the in-process gradient boosting backend. It fits
// small regression trees to the log-loss gradient with seeded row and
// column subsampling, so two fits with the same config, seed and training
// set produce the same model.
package boosting

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"offerctr/domain/feature"
	"offerctr/ports"
)

const regularization = 1.0

// Booster implements ports.BoosterPort with an in-process tree learner.
type Booster struct{}

// NewBooster returns the reference boosting backend.
func NewBooster() *Booster {
	return &Booster{}
}

// Fit trains one gradient-boosted model for the request's config and seed.
func (b *Booster) Fit(ctx context.Context, req ports.FitRequest) (ports.FittedModel, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if req.Matrix == nil || req.Matrix.Len() == 0 {
		return nil, fmt.Errorf("cannot fit %s: empty training matrix", req.Config.Name)
	}
	if req.Matrix.Len() != len(req.Labels) {
		return nil, fmt.Errorf("cannot fit %s: %d rows but %d labels",
			req.Config.Name, req.Matrix.Len(), len(req.Labels))
	}
	for i, label := range req.Labels {
		if math.IsNaN(label) || label < 0 || label > 1 {
			return nil, fmt.Errorf("cannot fit %s: label %f at row %d outside [0,1]",
				req.Config.Name, label, i)
		}
	}

	rows := req.Matrix.Rows
	width := req.Matrix.Schema.Width()
	n := len(rows)
	cfg := req.Config
	rng := rand.New(rand.NewSource(req.Seed))

	base := baseScore(req.Labels)
	raw := make([]float64, n)
	for i := range raw {
		raw[i] = base
	}

	grad := make([]float64, n)
	hess := make([]float64, n)
	trees := make([]*node, 0, cfg.Rounds)

	for round := 0; round < cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range rows {
			p := sigmoid(raw[i])
			grad[i] = p - req.Labels[i]
			hess[i] = p * (1 - p)
		}

		grower := &treeGrower{
			rows:       rows,
			grad:       grad,
			hess:       hess,
			maxDepth:   cfg.MaxDepth,
			minLeaf:    cfg.MinLeafWeight,
			lambda:     regularization,
			features:   sampleIndices(width, cfg.ColSubsample, rng),
			sampleRows: sampleIndices(n, cfg.Subsample, rng),
		}
		tree := grower.grow()
		trees = append(trees, tree)

		for i := range rows {
			raw[i] += cfg.LearningRate * tree.predict(rows[i])
		}
	}

	return &fittedModel{base: base, rate: cfg.LearningRate, trees: trees}, nil
}

// baseScore is the log-odds of the label mean, the standard constant
// initial prediction for log-loss boosting.
func baseScore(labels []float64) float64 {
	sum := 0.0
	for _, label := range labels {
		sum += label
	}
	mean := sum / float64(len(labels))
	const eps = 1e-6
	if mean < eps {
		mean = eps
	} else if mean > 1-eps {
		mean = 1 - eps
	}
	return math.Log(mean / (1 - mean))
}

// sampleIndices draws a sorted fraction of [0,n) without replacement.
// A fraction of 1 short-circuits so the rng state stays untouched.
func sampleIndices(n int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	k := int(math.Ceil(fraction * float64(n)))
	if k < 1 {
		k = 1
	}
	picked := rng.Perm(n)[:k]
	sort.Ints(picked)
	return picked
}

// fittedModel is a trained boosted ensemble of trees plus its bias.
type fittedModel struct {
	base  float64
	rate  float64
	trees []*node
}

// PredictRow scores one feature row as a probability.
func (m *fittedModel) PredictRow(row []float64) float64 {
	raw := m.base
	for _, tree := range m.trees {
		raw += m.rate * tree.predict(row)
	}
	return sigmoid(raw)
}

// Predict scores every row of a matrix in row order.
func (m *fittedModel) Predict(mat *feature.Matrix) []float64 {
	out := make([]float64, mat.Len())
	for i, row := range mat.Rows {
		out[i] = m.PredictRow(row)
	}
	return out
}

// Rounds reports how many trees the model carries.
func (m *fittedModel) Rounds() int {
	return len(m.trees)
}
