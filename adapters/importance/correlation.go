// Package importance scores feature columns against the click label so the
// selection gate can rank them. Scores are signed Pearson correlations; the
// gate ranks on absolute value, so direction survives for reporting while
// ranking stays magnitude-based.
package importance

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"offerctr/domain/core"
)

// CorrelationScorer ranks a column by its Pearson correlation with the
// binary label vector (point-biserial when the labels are 0/1). A constant
// column scores zero rather than erroring so the variance gate stays the
// single authority on dropping flat columns.
type CorrelationScorer struct {
	// MinSamples guards the t-approximation; below it Score returns 0.
	MinSamples int
}

// NewCorrelationScorer returns a scorer with the default sample floor.
func NewCorrelationScorer() *CorrelationScorer {
	return &CorrelationScorer{MinSamples: 3}
}

// Score implements ports.ImportanceScorerPort.
func (s *CorrelationScorer) Score(values, labels []float64) (float64, error) {
	if len(values) != len(labels) {
		return 0, core.NewInvalidStatisticError("importance", "values and labels differ in length")
	}
	if len(values) < s.MinSamples {
		return 0, nil
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, core.NewInvalidStatisticError("importance", "non-finite feature value")
		}
		if math.IsNaN(labels[i]) || math.IsInf(labels[i], 0) {
			return 0, core.NewInvalidStatisticError("importance", "non-finite label")
		}
	}

	r := stat.Correlation(values, labels, nil)
	if math.IsNaN(r) {
		// Zero variance on either side; no association measurable.
		return 0, nil
	}
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, nil
}

// PValue reports the two-tailed significance of a correlation at a given
// sample size, via the t transform r*sqrt(df/(1-r^2)).
func (s *CorrelationScorer) PValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if r >= 1 || r <= -1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * (1 - tDist.CDF(math.Abs(t)))
}
