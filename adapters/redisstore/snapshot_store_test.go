package redisstore

import (
	"encoding/json"
	"testing"
	"time"

	"offerctr/domain/core"
	"offerctr/domain/temporal"
	"offerctr/ports"
)

func TestSnapshotKey(t *testing.T) {
	if got := snapshotKey("offerctr", "prod"); got != "offerctr:snapshot:prod" {
		t.Errorf("snapshotKey = %s", got)
	}
}

func TestBundleRoundTripsThroughJSON(t *testing.T) {
	watermark := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)
	last := time.Date(2024, time.March, 5, 9, 30, 0, 0, time.UTC)

	bundle := ports.SnapshotBundle{
		Keyed: map[string][]temporal.Snapshot{
			"user": {{
				Key:                "user_id=u1",
				Impressions:        10,
				Clicks:             3,
				DecayedImpressions: 7.25,
				DecayedClicks:      2.5,
				LastEvent:          core.NewTimestamp(last),
				Watermark:          core.NewWatermark(watermark),
			}},
		},
		Watermark:  core.NewTimestamp(watermark),
		ConfigHash: core.ConfigHash("abc123"),
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back ports.SnapshotBundle
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.Watermark.IsZero() {
		t.Fatal("bundle watermark lost in round trip")
	}
	if !back.Watermark.Time().Equal(watermark) {
		t.Errorf("bundle watermark = %v, want %v", back.Watermark.Time(), watermark)
	}

	snaps := back.Keyed["user"]
	if len(snaps) != 1 {
		t.Fatalf("got %d user snapshots, want 1", len(snaps))
	}
	snap := snaps[0]
	if snap.Watermark.Time().IsZero() {
		t.Fatal("snapshot watermark lost in round trip")
	}
	if !snap.Watermark.Time().Equal(watermark) {
		t.Errorf("snapshot watermark = %v, want %v", snap.Watermark.Time(), watermark)
	}
	if !snap.LastEvent.Time().Equal(last) {
		t.Errorf("last event = %v, want %v", snap.LastEvent.Time(), last)
	}
	if snap.Impressions != 10 || snap.Clicks != 3 {
		t.Errorf("counts = (%d, %d), want (10, 3)", snap.Impressions, snap.Clicks)
	}
	if snap.DecayedImpressions != 7.25 || snap.DecayedClicks != 2.5 {
		t.Errorf("decayed counts = (%v, %v), want (7.25, 2.5)", snap.DecayedImpressions, snap.DecayedClicks)
	}
	if err := snap.Validate(); err != nil {
		t.Errorf("round-tripped snapshot fails validation: %v", err)
	}
}
