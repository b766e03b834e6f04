// Package resamplers holds the in-process class rebalancing strategies. All
// of them are deterministic for a fixed seed, synthesize distinguishable
// record IDs, and leave the input matrix untouched.
package resamplers

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"offerctr/domain/core"
	"offerctr/domain/feature"
	"offerctr/domain/resample"
	"offerctr/ports"
)

// ForVariant returns the resampler implementing a parsed method variant
func ForVariant(v resample.Variant) (ports.ResamplerPort, error) {
	switch v {
	case resample.None:
		return passthrough{}, nil
	case resample.Oversample:
		return oversampler{}, nil
	case resample.Undersample:
		return undersampler{}, nil
	case resample.Hybrid:
		return hybrid{}, nil
	}
	return nil, core.NewUnknownResampleMethodError(string(v))
}

// Registry routes each request to the implementation of its parsed method,
// so callers hold one port regardless of the configured strategy.
type Registry struct{}

// NewRegistry creates the dispatching resampler
func NewRegistry() *Registry {
	return &Registry{}
}

// Resample dispatches on the request's method variant
func (Registry) Resample(ctx context.Context, req ports.ResampleRequest) (*ports.ResampleResult, error) {
	impl, err := ForVariant(req.Method.Variant)
	if err != nil {
		return nil, err
	}
	return impl.Resample(ctx, req)
}

// passthrough returns the training set unchanged
type passthrough struct{}

func (passthrough) Resample(ctx context.Context, req ports.ResampleRequest) (*ports.ResampleResult, error) {
	return &ports.ResampleResult{
		Matrix:     req.Matrix,
		Labels:     req.Labels,
		SourceRows: req.Matrix.Len(),
		ResultRows: req.Matrix.Len(),
	}, nil
}

// oversampler grows the minority class with interpolated synthetic rows
// until the classes balance
type oversampler struct{}

func (oversampler) Resample(ctx context.Context, req ports.ResampleRequest) (*ports.ResampleResult, error) {
	split, err := splitClasses(req.Matrix, req.Labels)
	if err != nil {
		return nil, err
	}
	if split.balanced() {
		return passthrough{}.Resample(ctx, req)
	}

	rng := rand.New(rand.NewSource(req.Seed))
	out, labels := cloneMatrix(req.Matrix, req.Labels)

	need := len(split.majority) - len(split.minority)
	for i := 0; i < need; i++ {
		row := synthesizeRow(req.Matrix, split.minority, rng, i)
		if err := out.Append(row); err != nil {
			return nil, err
		}
		labels = append(labels, split.minorityLabel)
	}

	return &ports.ResampleResult{
		Matrix:     out,
		Labels:     labels,
		SourceRows: req.Matrix.Len(),
		ResultRows: out.Len(),
	}, nil
}

// undersampler randomly drops majority rows until the classes balance
type undersampler struct{}

func (undersampler) Resample(ctx context.Context, req ports.ResampleRequest) (*ports.ResampleResult, error) {
	split, err := splitClasses(req.Matrix, req.Labels)
	if err != nil {
		return nil, err
	}
	if split.balanced() {
		return passthrough{}.Resample(ctx, req)
	}

	rng := rand.New(rand.NewSource(req.Seed))
	kept := sampleWithout(split.majority, len(split.minority), rng)

	indices := append(append([]int{}, split.minority...), kept...)
	sort.Ints(indices)

	out := feature.NewMatrix(req.Matrix.Schema)
	labels := make([]float64, 0, len(indices))
	for _, idx := range indices {
		if err := out.Append(feature.Row{RecordID: req.Matrix.RecordIDs[idx], Values: req.Matrix.Rows[idx]}); err != nil {
			return nil, err
		}
		labels = append(labels, req.Labels[idx])
	}

	return &ports.ResampleResult{
		Matrix:     out,
		Labels:     labels,
		SourceRows: req.Matrix.Len(),
		ResultRows: out.Len(),
	}, nil
}

// hybrid oversamples the minority to the midpoint, then undersamples the
// majority down to the same size
type hybrid struct{}

func (hybrid) Resample(ctx context.Context, req ports.ResampleRequest) (*ports.ResampleResult, error) {
	split, err := splitClasses(req.Matrix, req.Labels)
	if err != nil {
		return nil, err
	}
	if split.balanced() {
		return passthrough{}.Resample(ctx, req)
	}

	rng := rand.New(rand.NewSource(req.Seed))
	target := (len(split.minority) + len(split.majority)) / 2
	if target < 1 {
		target = 1
	}

	kept := sampleWithout(split.majority, target, rng)
	sort.Ints(kept)

	out := feature.NewMatrix(req.Matrix.Schema)
	var labels []float64

	for _, idx := range split.minority {
		if err := out.Append(feature.Row{RecordID: req.Matrix.RecordIDs[idx], Values: req.Matrix.Rows[idx]}); err != nil {
			return nil, err
		}
		labels = append(labels, req.Labels[idx])
	}
	for _, idx := range kept {
		if err := out.Append(feature.Row{RecordID: req.Matrix.RecordIDs[idx], Values: req.Matrix.Rows[idx]}); err != nil {
			return nil, err
		}
		labels = append(labels, req.Labels[idx])
	}

	need := target - len(split.minority)
	for i := 0; i < need; i++ {
		row := synthesizeRow(req.Matrix, split.minority, rng, i)
		if err := out.Append(row); err != nil {
			return nil, err
		}
		labels = append(labels, split.minorityLabel)
	}

	return &ports.ResampleResult{
		Matrix:     out,
		Labels:     labels,
		SourceRows: req.Matrix.Len(),
		ResultRows: out.Len(),
	}, nil
}

// classSplit indexes rows by class
type classSplit struct {
	minority      []int
	majority      []int
	minorityLabel float64
}

func (s classSplit) balanced() bool {
	return len(s.minority) == len(s.majority)
}

func splitClasses(m *feature.Matrix, labels []float64) (classSplit, error) {
	if m.Len() == 0 {
		return classSplit{}, fmt.Errorf("cannot resample an empty training set")
	}
	if len(labels) != m.Len() {
		return classSplit{}, fmt.Errorf("label count %d does not match matrix rows %d", len(labels), m.Len())
	}

	var pos, neg []int
	for i, y := range labels {
		if y > 0 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	if len(pos) == 0 || len(neg) == 0 {
		return classSplit{}, fmt.Errorf("cannot rebalance a single-class training set")
	}

	if len(pos) <= len(neg) {
		return classSplit{minority: pos, majority: neg, minorityLabel: 1}, nil
	}
	return classSplit{minority: neg, majority: pos, minorityLabel: 0}, nil
}

// synthesizeRow interpolates between two random minority rows. With a lone
// minority row it duplicates instead.
func synthesizeRow(m *feature.Matrix, minority []int, rng *rand.Rand, seq int) feature.Row {
	a := minority[rng.Intn(len(minority))]
	b := minority[rng.Intn(len(minority))]
	u := rng.Float64()

	values := make([]float64, len(m.Rows[a]))
	for i := range values {
		values[i] = m.Rows[a][i] + u*(m.Rows[b][i]-m.Rows[a][i])
	}
	id := core.RecordID(fmt.Sprintf("syn-%d-%s", seq, m.RecordIDs[a]))
	return feature.Row{RecordID: id, Values: values}
}

// sampleWithout picks k distinct indices from pool
func sampleWithout(pool []int, k int, rng *rand.Rand) []int {
	shuffled := append([]int{}, pool...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if k > len(shuffled) {
		k = len(shuffled)
	}
	return shuffled[:k]
}

// cloneMatrix copies a matrix so appends never touch the caller's rows
func cloneMatrix(m *feature.Matrix, labels []float64) (*feature.Matrix, []float64) {
	out := feature.NewMatrix(m.Schema)
	out.RecordIDs = append([]core.RecordID{}, m.RecordIDs...)
	out.Rows = append([][]float64{}, m.Rows...)
	outLabels := append([]float64{}, labels...)
	return out, outLabels
}
