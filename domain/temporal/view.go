package temporal

import (
	"time"

	"offerctr/domain/core"
)

// View is the statistic for one entity key as of one instant. Every value is
// derived exclusively from events strictly before AsOf; the event being
// scored never contributes to its own view.
type View struct {
	Key  Key            `json:"key"`
	AsOf core.Timestamp `json:"as_of"`

	// Raw lifetime counts
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`

	// Exponentially decayed counts, decayed to AsOf
	DecayedImpressions float64 `json:"decayed_impressions"`
	DecayedClicks      float64 `json:"decayed_clicks"`

	// Time since the entity's previous event; zero when unseen
	SinceLast time.Duration `json:"since_last"`

	// Seen is false on cold start: the entity has no prior events
	Seen bool `json:"seen"`
}

// ColdView returns the view of an entity with no history
func ColdView(key Key, asOf core.Timestamp) View {
	return View{Key: key, AsOf: asOf}
}

// RawRate returns the unsmoothed click rate, zero when unseen. Smoothed
// encoding lives in the encoding package; this is for diagnostics only.
func (v View) RawRate() float64 {
	if v.Impressions == 0 {
		return 0
	}
	return float64(v.Clicks) / float64(v.Impressions)
}

// RecencyDays returns SinceLast in fractional days, zero when unseen
func (v View) RecencyDays() float64 {
	if !v.Seen {
		return 0
	}
	return v.SinceLast.Hours() / 24
}
