package encoding

import (
	"errors"
	"math"
	"testing"

	"offerctr/domain/core"
	"offerctr/domain/temporal"
)

// TestNewSmootherValidation tests configuration bounds
func TestNewSmootherValidation(t *testing.T) {
	tests := []struct {
		name    string
		alpha   float64
		prior   float64
		wantErr bool
	}{
		{"valid", 10, 0.1, false},
		{"zero alpha", 0, 0.1, true},
		{"negative alpha", -5, 0.1, true},
		{"NaN alpha", math.NaN(), 0.1, true},
		{"infinite alpha", math.Inf(1), 0.1, true},
		{"prior below zero", 10, -0.01, true},
		{"prior above one", 10, 1.01, true},
		{"NaN prior", 10, math.NaN(), true},
		{"boundary priors", 1, 0, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewSmoother(test.alpha, test.prior)
			if test.wantErr && !errors.Is(err, core.ErrInvalidStatistic) {
				t.Errorf("Expected ErrInvalidStatistic for alpha=%v prior=%v, got %v",
					test.alpha, test.prior, err)
			}
			if !test.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

// TestColdStartReturnsPriorExactly tests the zero-impressions boundary
func TestColdStartReturnsPriorExactly(t *testing.T) {
	s, err := NewSmoother(25, 0.037)
	if err != nil {
		t.Fatalf("NewSmoother: %v", err)
	}

	rate, err := s.Rate(temporal.View{})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if rate != 0.037 {
		t.Errorf("Cold-start rate = %v, want exactly the prior 0.037", rate)
	}
}

// TestConvergenceToEmpiricalRate tests the large-count boundary: 10000
// impressions with 3000 clicks at alpha=10, p0=0.1 lands within a hair of
// the empirical 0.3
func TestConvergenceToEmpiricalRate(t *testing.T) {
	s, err := NewSmoother(10, 0.1)
	if err != nil {
		t.Fatalf("NewSmoother: %v", err)
	}

	rate, err := s.Rate(temporal.View{Impressions: 10000, Clicks: 3000, Seen: true})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}

	want := (3000.0 + 10*0.1) / (10000.0 + 10)
	if math.Abs(rate-want) > 1e-15 {
		t.Errorf("rate = %v, want %v", rate, want)
	}
	if math.Abs(rate-0.3) > 1e-3 {
		t.Errorf("rate = %v, expected within 1e-3 of empirical 0.3", rate)
	}

	// More data pulls closer to empirical than less data does
	sparse, _ := s.Rate(temporal.View{Impressions: 10, Clicks: 3, Seen: true})
	if math.Abs(rate-0.3) >= math.Abs(sparse-0.3) {
		t.Errorf("Expected dense rate %v closer to 0.3 than sparse rate %v", rate, sparse)
	}
}

// TestSparseEntityPulledTowardPrior tests smoothing strength on thin counts
func TestSparseEntityPulledTowardPrior(t *testing.T) {
	s, _ := NewSmoother(10, 0.1)

	// One impression, one click: unsmoothed rate would be 1.0
	rate, err := s.Rate(temporal.View{Impressions: 1, Clicks: 1, Seen: true})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	want := (1.0 + 1.0) / 11.0
	if math.Abs(rate-want) > 1e-15 {
		t.Errorf("rate = %v, want %v", rate, want)
	}
	if rate > 0.2 {
		t.Errorf("One-click entity rate %v should stay near prior, not near 1", rate)
	}
}

// TestInvalidInputsNeverCoerced tests the error contract: corrupt counts
// fail loudly instead of becoming zero
func TestInvalidInputsNeverCoerced(t *testing.T) {
	s, _ := NewSmoother(10, 0.1)

	tests := []struct {
		name string
		view temporal.View
	}{
		{"negative impressions", temporal.View{Impressions: -1}},
		{"negative clicks", temporal.View{Impressions: 5, Clicks: -2}},
		{"clicks exceed impressions", temporal.View{Impressions: 2, Clicks: 3}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := s.Rate(test.view)
			if !errors.Is(err, core.ErrInvalidStatistic) {
				t.Errorf("Expected ErrInvalidStatistic, got %v", err)
			}
		})
	}

	decayed := []struct {
		name string
		view temporal.View
	}{
		{"NaN decayed impressions", temporal.View{DecayedImpressions: math.NaN()}},
		{"infinite decayed clicks", temporal.View{DecayedImpressions: 5, DecayedClicks: math.Inf(1)}},
		{"negative decayed impressions", temporal.View{DecayedImpressions: -0.5}},
	}

	for _, test := range decayed {
		t.Run(test.name, func(t *testing.T) {
			_, err := s.DecayedRate(test.view)
			if !errors.Is(err, core.ErrInvalidStatistic) {
				t.Errorf("Expected ErrInvalidStatistic, got %v", err)
			}
		})
	}
}

// TestDecayedRate tests smoothing over decayed counts
func TestDecayedRate(t *testing.T) {
	s, _ := NewSmoother(4, 0.25)

	rate, err := s.DecayedRate(temporal.View{DecayedImpressions: 6, DecayedClicks: 1.5, Seen: true})
	if err != nil {
		t.Fatalf("DecayedRate: %v", err)
	}
	want := (1.5 + 1.0) / 10.0
	if math.Abs(rate-want) > 1e-15 {
		t.Errorf("rate = %v, want %v", rate, want)
	}

	cold, err := s.DecayedRate(temporal.View{})
	if err != nil {
		t.Fatalf("DecayedRate cold: %v", err)
	}
	if cold != 0.25 {
		t.Errorf("Cold decayed rate = %v, want prior", cold)
	}
}

// TestRateMonotoneInClicks tests more clicks never lower the rate
func TestRateMonotoneInClicks(t *testing.T) {
	s, _ := NewSmoother(10, 0.1)
	prev := -1.0
	for clicks := int64(0); clicks <= 50; clicks += 5 {
		rate, err := s.Rate(temporal.View{Impressions: 50, Clicks: clicks, Seen: true})
		if err != nil {
			t.Fatalf("Rate: %v", err)
		}
		if rate <= prev {
			t.Errorf("rate %v at clicks=%d not above previous %v", rate, clicks, prev)
		}
		prev = rate
	}
}
