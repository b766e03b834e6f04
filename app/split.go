package app

import (
	"fmt"

	"offerctr/domain/feature"
)

// Split is a chronological train/validation partition. Train rows strictly
// precede validation rows in event time; the slices share row storage with
// the source matrix.
type Split struct {
	Train            *feature.Matrix
	TrainLabels      []float64
	Validation       *feature.Matrix
	ValidationLabels []float64
}

// TimeOrderedSplit cuts the newest fraction of rows off as the validation
// set. Rows must already be in ascending event order, which the loader
// guarantees by ordering every chunk on the timestamp column; splitting by
// index then preserves the temporal boundary without a shuffle.
func TimeOrderedSplit(m *feature.Matrix, labels []float64, validationFraction float64) (*Split, error) {
	if m.Len() != len(labels) {
		return nil, fmt.Errorf("matrix has %d rows but %d labels", m.Len(), len(labels))
	}
	if validationFraction <= 0 || validationFraction >= 1 {
		return nil, fmt.Errorf("validation fraction must be in (0,1), got %v", validationFraction)
	}

	cut := m.Len() - int(float64(m.Len())*validationFraction)
	if cut <= 0 || cut >= m.Len() {
		return nil, fmt.Errorf("split of %d rows at fraction %v leaves an empty side", m.Len(), validationFraction)
	}

	return &Split{
		Train:            m.Slice(0, cut),
		TrainLabels:      labels[:cut],
		Validation:       m.Slice(cut, m.Len()),
		ValidationLabels: labels[cut:],
	}, nil
}
