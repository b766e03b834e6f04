// Package encoding turns per-entity statistic views into Bayesian-smoothed
// target encodings. The smoother blends an entity's empirical click rate
// with a global prior weighted by a pseudo-count, which keeps sparse
// entities sane: a user with one click out of one impression is not a 100%
// clicker, just barely above prior.
package encoding

import (
	"fmt"
	"math"

	"offerctr/domain/core"
	"offerctr/domain/temporal"
)

// Smoother holds the smoothing configuration. Alpha is the pseudo-count,
// Prior the global click rate p0. Both are configuration, never learned per
// entity.
type Smoother struct {
	Alpha float64
	Prior float64
}

// NewSmoother validates and builds a smoother
func NewSmoother(alpha, prior float64) (Smoother, error) {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || alpha <= 0 {
		return Smoother{}, core.NewInvalidStatisticError("smoothing_alpha",
			fmt.Sprintf("must be positive and finite, got %v", alpha))
	}
	if math.IsNaN(prior) || prior < 0 || prior > 1 {
		return Smoother{}, core.NewInvalidStatisticError("prior_rate",
			fmt.Sprintf("must be in [0,1], got %v", prior))
	}
	return Smoother{Alpha: alpha, Prior: prior}, nil
}

// Rate computes the smoothed click rate from a pre-update view:
//
//	rate = (clicks + alpha*prior) / (impressions + alpha)
//
// Zero impressions yield exactly the prior; growing impressions converge to
// the empirical rate. The input must be the same time-sliced view the
// temporal engine emitted; feeding a global aggregate here defeats the
// whole leakage discipline.
func (s Smoother) Rate(view temporal.View) (float64, error) {
	if err := checkCounts("impressions", float64(view.Impressions)); err != nil {
		return 0, err
	}
	if err := checkCounts("clicks", float64(view.Clicks)); err != nil {
		return 0, err
	}
	if view.Clicks > view.Impressions {
		return 0, core.NewInvalidStatisticError("clicks", "exceeds impressions")
	}
	return s.rate(float64(view.Impressions), float64(view.Clicks)), nil
}

// DecayedRate computes the smoothed rate on the decayed counts of the same
// view. Recency-weighted encoding for entities whose taste drifts.
func (s Smoother) DecayedRate(view temporal.View) (float64, error) {
	if err := checkCounts("decayed_impressions", view.DecayedImpressions); err != nil {
		return 0, err
	}
	if err := checkCounts("decayed_clicks", view.DecayedClicks); err != nil {
		return 0, err
	}
	// Tiny float error can push decayed clicks a hair over impressions
	if view.DecayedClicks > view.DecayedImpressions*(1+1e-9) {
		return 0, core.NewInvalidStatisticError("decayed_clicks", "exceeds decayed impressions")
	}
	return s.rate(view.DecayedImpressions, view.DecayedClicks), nil
}

func (s Smoother) rate(impressions, clicks float64) float64 {
	return (clicks + s.Alpha*s.Prior) / (impressions + s.Alpha)
}

func checkCounts(field string, v float64) error {
	if math.IsNaN(v) {
		return core.NewInvalidStatisticError(field, "is NaN")
	}
	if math.IsInf(v, 0) {
		return core.NewInvalidStatisticError(field, "is infinite")
	}
	if v < 0 {
		return core.NewInvalidStatisticError(field, "is negative")
	}
	return nil
}
