// Package eval computes validation metrics for scored prediction sets.
package eval

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Result holds the validation metrics for one run.
type Result struct {
	AUC     float64 `json:"auc"`
	LogLoss float64 `json:"log_loss"`
}

// Evaluate computes AUC and log-loss for aligned score/label vectors.
// Labels must be 0 or 1 and both classes must be present.
func Evaluate(scores, labels []float64) (Result, error) {
	auc, err := AUC(scores, labels)
	if err != nil {
		return Result{}, err
	}
	loss, err := LogLoss(scores, labels)
	if err != nil {
		return Result{}, err
	}
	return Result{AUC: auc, LogLoss: loss}, nil
}

// AUC is the area under the ROC curve of the scores against binary labels.
func AUC(scores, labels []float64) (float64, error) {
	if err := checkPairs(scores, labels); err != nil {
		return 0, err
	}

	ordered := make([]int, len(scores))
	for i := range ordered {
		ordered[i] = i
	}
	sort.Slice(ordered, func(a, b int) bool {
		return scores[ordered[a]] < scores[ordered[b]]
	})

	y := make([]float64, len(scores))
	classes := make([]bool, len(scores))
	positives := 0
	for rank, idx := range ordered {
		y[rank] = scores[idx]
		classes[rank] = labels[idx] == 1
		if classes[rank] {
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return 0, fmt.Errorf("auc undefined: validation split holds a single class")
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// LogLoss is the mean negative log-likelihood of the labels under the
// scores. Scores are clamped away from 0 and 1 so a single overconfident
// wrong prediction cannot produce an infinite loss.
func LogLoss(scores, labels []float64) (float64, error) {
	if err := checkPairs(scores, labels); err != nil {
		return 0, err
	}

	const eps = 1e-15
	total := 0.0
	for i, p := range scores {
		if p < eps {
			p = eps
		} else if p > 1-eps {
			p = 1 - eps
		}
		if labels[i] == 1 {
			total -= math.Log(p)
		} else {
			total -= math.Log(1 - p)
		}
	}
	return total / float64(len(scores)), nil
}

func checkPairs(scores, labels []float64) error {
	if len(scores) == 0 {
		return fmt.Errorf("no scored rows to evaluate")
	}
	if len(scores) != len(labels) {
		return fmt.Errorf("%d scores but %d labels", len(scores), len(labels))
	}
	for i, label := range labels {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %f at row %d is not binary", label, i)
		}
		if math.IsNaN(scores[i]) || math.IsInf(scores[i], 0) {
			return fmt.Errorf("non-finite score at row %d", i)
		}
	}
	return nil
}
