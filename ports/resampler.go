package ports

import (
	"context"

	"offerctr/domain/feature"
	"offerctr/domain/resample"
)

// ResamplerPort rebalances a training set. Implementations must be
// deterministic for a fixed seed and must never touch anything but the rows
// they are handed; evaluation splits stay at their natural class ratio.
type ResamplerPort interface {
	Resample(ctx context.Context, req ResampleRequest) (*ResampleResult, error)
}

// ResampleRequest carries the training rows and the chosen method
type ResampleRequest struct {
	Matrix *feature.Matrix
	Labels []float64
	Method resample.Method
	Seed   int64
}

// ResampleResult is the rebalanced training set. Synthetic rows carry fresh
// record IDs so provenance stays distinguishable from source rows.
type ResampleResult struct {
	Matrix *feature.Matrix
	Labels []float64

	// SourceRows and ResultRows record the size change for the run manifest
	SourceRows int
	ResultRows int
}
