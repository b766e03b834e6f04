package app

import (
	"fmt"
	"testing"

	"offerctr/domain/core"
	"offerctr/domain/feature"
)

func orderedMatrix(n int) (*feature.Matrix, []float64) {
	m := feature.NewMatrix(feature.NewSchema("x"))
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		id := core.RecordID(fmt.Sprintf("row_%03d", i))
		if err := m.Append(feature.Row{RecordID: id, Values: []float64{float64(i)}}); err != nil {
			panic(err)
		}
		labels[i] = float64(i % 2)
	}
	return m, labels
}

func TestTimeOrderedSplitSizes(t *testing.T) {
	m, labels := orderedMatrix(10)

	split, err := TimeOrderedSplit(m, labels, 0.2)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if split.Train.Len() != 8 || split.Validation.Len() != 2 {
		t.Fatalf("expected 8/2 rows, got %d/%d", split.Train.Len(), split.Validation.Len())
	}
	if len(split.TrainLabels) != 8 || len(split.ValidationLabels) != 2 {
		t.Fatalf("label slices do not match the matrices: %d/%d",
			len(split.TrainLabels), len(split.ValidationLabels))
	}
}

func TestTimeOrderedSplitKeepsNewestRowsForValidation(t *testing.T) {
	m, labels := orderedMatrix(20)

	split, err := TimeOrderedSplit(m, labels, 0.25)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}

	// Rows carry their chronological index in column 0: every validation
	// row must be newer than every training row.
	maxTrain := split.Train.Rows[split.Train.Len()-1][0]
	for _, row := range split.Validation.Rows {
		if row[0] <= maxTrain {
			t.Fatalf("validation row %v is not newer than last training row %v", row[0], maxTrain)
		}
	}
}

func TestTimeOrderedSplitLabelsStayAligned(t *testing.T) {
	m, labels := orderedMatrix(12)

	split, err := TimeOrderedSplit(m, labels, 0.5)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	for i, row := range split.Train.Rows {
		if split.TrainLabels[i] != float64(int(row[0])%2) {
			t.Fatalf("training label %d drifted from its row", i)
		}
	}
	for i, row := range split.Validation.Rows {
		if split.ValidationLabels[i] != float64(int(row[0])%2) {
			t.Fatalf("validation label %d drifted from its row", i)
		}
	}
}

func TestTimeOrderedSplitRejectsBadInput(t *testing.T) {
	m, labels := orderedMatrix(10)

	if _, err := TimeOrderedSplit(m, labels, 0); err == nil {
		t.Fatal("expected error for zero fraction")
	}
	if _, err := TimeOrderedSplit(m, labels, 1); err == nil {
		t.Fatal("expected error for full fraction")
	}
	if _, err := TimeOrderedSplit(m, labels[:5], 0.2); err == nil {
		t.Fatal("expected error for mismatched labels")
	}

	tiny, tinyLabels := orderedMatrix(1)
	if _, err := TimeOrderedSplit(tiny, tinyLabels, 0.2); err == nil {
		t.Fatal("expected error when a side would be empty")
	}
}
