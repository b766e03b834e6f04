package ports

import (
	"context"

	"offerctr/domain/core"
)

// RunStatus tracks a training run through its lifecycle
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunCounts records the row accounting of one run
type RunCounts struct {
	LoadedRows    int `json:"loaded_rows"`
	TrainRows     int `json:"train_rows"`
	EvalRows      int `json:"eval_rows"`
	ResampledRows int `json:"resampled_rows"`
	RejectedRows  int `json:"rejected_rows"`
}

// RunMetrics holds the held-out evaluation of the combined score
type RunMetrics struct {
	AUC     float64 `json:"auc"`
	LogLoss float64 `json:"log_loss"`
}

// RunManifest is the durable record of one training run: enough to audit
// what was trained on what, and to validate that a later scoring run uses
// the same frozen feature contract.
type RunManifest struct {
	RunID       core.RunID      `json:"run_id"`
	Status      RunStatus       `json:"status"`
	StartedAt   core.Timestamp  `json:"started_at"`
	CompletedAt *core.Timestamp `json:"completed_at,omitempty"`

	ConfigHash    core.ConfigHash `json:"config_hash"`
	SchemaHash    core.SchemaHash `json:"schema_hash"`
	Columns       []string        `json:"columns"`
	Members       []core.ModelID  `json:"members"`
	ResampleName  string          `json:"resample_name"`
	Counts        RunCounts       `json:"counts"`
	Metrics       *RunMetrics     `json:"metrics,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// RunStorePort persists run manifests
type RunStorePort interface {
	SaveManifest(ctx context.Context, manifest RunManifest) error
	UpdateManifest(ctx context.Context, manifest RunManifest) error
	GetManifest(ctx context.Context, runID core.RunID) (*RunManifest, error)
}
