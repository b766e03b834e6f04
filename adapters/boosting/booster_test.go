package boosting

import (
	"context"
	"fmt"
	"testing"

	"offerctr/domain/core"
	"offerctr/domain/ensemble"
	"offerctr/domain/feature"
	"offerctr/ports"
)

func trainingMatrix(t *testing.T, n int) (*feature.Matrix, []float64) {
	t.Helper()
	m := feature.NewMatrix(feature.NewSchema("signal", "noise"))
	labels := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		signal := float64(i) / float64(n-1)
		noise := float64((i*7)%13) / 13.0
		id := core.RecordID(fmt.Sprintf("row-%d", i))
		if err := m.Append(feature.Row{RecordID: id, Values: []float64{signal, noise}}); err != nil {
			t.Fatalf("append: %v", err)
		}
		if signal > 0.5 {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}
	return m, labels
}

func fitConfig() ensemble.ModelConfig {
	return ensemble.ModelConfig{
		Name:          "deep",
		Rounds:        25,
		MaxDepth:      3,
		LearningRate:  0.3,
		Subsample:     1,
		ColSubsample:  1,
		MinLeafWeight: 0,
	}
}

func TestFitLearnsSeparablePattern(t *testing.T) {
	m, labels := trainingMatrix(t, 120)
	model, err := NewBooster().Fit(context.Background(), ports.FitRequest{
		Matrix: m, Labels: labels, Config: fitConfig(), Seed: 7,
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	low := model.PredictRow([]float64{0.1, 0.5})
	high := model.PredictRow([]float64{0.9, 0.5})
	if high <= low {
		t.Fatalf("high-signal row scored %f, low-signal %f; expected separation", high, low)
	}
	if low > 0.3 || high < 0.7 {
		t.Fatalf("weak separation: low=%f high=%f", low, high)
	}
}

func TestFitIsDeterministicPerSeed(t *testing.T) {
	m, labels := trainingMatrix(t, 80)
	cfg := fitConfig()
	cfg.Subsample = 0.8
	cfg.ColSubsample = 0.5

	fit := func(seed int64) []float64 {
		model, err := NewBooster().Fit(context.Background(), ports.FitRequest{
			Matrix: m, Labels: labels, Config: cfg, Seed: seed,
		})
		if err != nil {
			t.Fatalf("Fit: %v", err)
		}
		return model.Predict(m)
	}

	first := fit(42)
	second := fit(42)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed diverged at row %d: %f vs %f", i, first[i], second[i])
		}
	}

	other := fit(43)
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical models")
	}
}

func TestPredictionsAreProbabilities(t *testing.T) {
	m, labels := trainingMatrix(t, 60)
	model, err := NewBooster().Fit(context.Background(), ports.FitRequest{
		Matrix: m, Labels: labels, Config: fitConfig(), Seed: 1,
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for i, p := range model.Predict(m) {
		if p <= 0 || p >= 1 {
			t.Fatalf("row %d scored %f, outside (0,1)", i, p)
		}
	}
	if model.Rounds() != fitConfig().Rounds {
		t.Fatalf("Rounds() = %d, want %d", model.Rounds(), fitConfig().Rounds)
	}
}

func TestFitRejectsBadInputs(t *testing.T) {
	m, labels := trainingMatrix(t, 20)
	b := NewBooster()
	ctx := context.Background()

	if _, err := b.Fit(ctx, ports.FitRequest{Matrix: feature.NewMatrix(m.Schema), Labels: nil, Config: fitConfig(), Seed: 1}); err == nil {
		t.Fatal("expected error for empty matrix")
	}
	if _, err := b.Fit(ctx, ports.FitRequest{Matrix: m, Labels: labels[:5], Config: fitConfig(), Seed: 1}); err == nil {
		t.Fatal("expected error for label length mismatch")
	}

	bad := append([]float64{}, labels...)
	bad[0] = 2
	if _, err := b.Fit(ctx, ports.FitRequest{Matrix: m, Labels: bad, Config: fitConfig(), Seed: 1}); err == nil {
		t.Fatal("expected error for label outside [0,1]")
	}

	cfg := fitConfig()
	cfg.Rounds = 0
	if _, err := b.Fit(ctx, ports.FitRequest{Matrix: m, Labels: labels, Config: cfg, Seed: 1}); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestFitStopsOnCancelledContext(t *testing.T) {
	m, labels := trainingMatrix(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBooster().Fit(ctx, ports.FitRequest{Matrix: m, Labels: labels, Config: fitConfig(), Seed: 1}); err == nil {
		t.Fatal("expected context error")
	}
}
