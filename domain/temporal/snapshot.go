package temporal

import (
	"math"

	"offerctr/domain/core"
)

// Snapshot is one key's persisted accumulator. Decayed counts are stated as
// of the watermark; replaying from a snapshot stays exact because the decay
// kernel factorizes through it.
type Snapshot struct {
	Key                Key            `json:"key"`
	Impressions        int64          `json:"impressions"`
	Clicks             int64          `json:"clicks"`
	DecayedImpressions float64        `json:"decayed_impressions"`
	DecayedClicks      float64        `json:"decayed_clicks"`
	LastEvent          core.Timestamp `json:"last_event,omitempty"`
	Watermark          core.Watermark `json:"watermark"`
}

// Validate rejects snapshots that could never have been produced by a
// well-formed replay
func (s Snapshot) Validate() error {
	if s.Key == "" {
		return core.NewInvalidStatisticError("key", "is empty")
	}
	if s.Impressions < 0 {
		return core.NewInvalidStatisticError("impressions", "is negative")
	}
	if s.Clicks < 0 {
		return core.NewInvalidStatisticError("clicks", "is negative")
	}
	if s.Clicks > s.Impressions {
		return core.NewInvalidStatisticError("clicks", "exceeds impressions")
	}
	if math.IsNaN(s.DecayedImpressions) || math.IsInf(s.DecayedImpressions, 0) || s.DecayedImpressions < 0 {
		return core.NewInvalidStatisticError("decayed_impressions", "is not a finite non-negative number")
	}
	if math.IsNaN(s.DecayedClicks) || math.IsInf(s.DecayedClicks, 0) || s.DecayedClicks < 0 {
		return core.NewInvalidStatisticError("decayed_clicks", "is not a finite non-negative number")
	}
	if s.Watermark.Time().IsZero() {
		return core.NewInvalidStatisticError("watermark", "is zero")
	}
	if !s.LastEvent.IsZero() && s.LastEvent.After(core.Timestamp(s.Watermark)) {
		return core.NewInvalidStatisticError("last_event", "is after watermark")
	}
	return nil
}
