package ports

import (
	"context"

	"offerctr/domain/core"
	"offerctr/domain/temporal"
)

// SnapshotBundle is the persisted form of every engine's state at one
// watermark. Keyed by key spec name so a restore can route each snapshot
// set back to its engine.
type SnapshotBundle struct {
	Keyed      map[string][]temporal.Snapshot `json:"keyed"`
	Watermark  core.Timestamp                 `json:"watermark"`
	ConfigHash core.ConfigHash                `json:"config_hash"`
}

// SnapshotStorePort persists and recovers statistic state between runs.
// Load returns core.ErrSnapshotNotFound when no bundle exists under the
// name; callers then start cold, which is always safe.
type SnapshotStorePort interface {
	Save(ctx context.Context, name string, bundle SnapshotBundle) error
	Load(ctx context.Context, name string) (*SnapshotBundle, error)
}
