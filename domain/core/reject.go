package core

// RejectedRecord captures one record the pipeline refused, with enough
// context to audit why. Rejected records flow to a sink and never touch
// statistics.
type RejectedRecord struct {
	RecordID RecordID  `json:"record_id"`
	At       Timestamp `json:"at,omitempty"`
	Stage    string    `json:"stage"`
	Reason   string    `json:"reason"`
}

// Rejection stages
const (
	StageLoad         = "load"
	StageStatistics   = "statistics"
	StageEncoding     = "encoding"
	StageTransactions = "transactions"
)
