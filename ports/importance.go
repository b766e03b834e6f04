package ports

// ImportanceScorerPort ranks one feature column against the binary label
// vector. Higher absolute score means more useful. The signature matches
// feature.Scorer so adapters plug straight into the selection gate.
type ImportanceScorerPort interface {
	Score(values, labels []float64) (float64, error)
}
