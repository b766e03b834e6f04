package ensemble

import (
	"offerctr/domain/core"
)

// Model scores one feature row with a click probability in [0,1]. Fitted
// models come from the boosting port; this is the minimal surface the
// ensemble needs from them.
type Model interface {
	PredictRow(values []float64) float64
}

// Member is one fitted ensemble member. The schema hash pins the frozen
// feature schema the member was trained against; scoring rows built from a
// different schema is a contract violation, not a runtime guess.
type Member struct {
	ID         core.ModelID
	ConfigName string
	Seed       int64
	SchemaHash core.SchemaHash
	Model      Model
}

// Prediction is the immutable scoring output for one record
type Prediction struct {
	RecordID core.RecordID            `json:"record_id"`
	PerModel map[core.ModelID]float64 `json:"per_model"`
	Combined float64                  `json:"combined"`
}
