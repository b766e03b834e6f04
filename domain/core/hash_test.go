package core

import (
	"testing"
	"time"
)

// TestComputeSchemaHashOrderSensitive tests that column order changes the hash
func TestComputeSchemaHashOrderSensitive(t *testing.T) {
	a := ComputeSchemaHash([]string{"user_ctr", "offer_ctr", "hour_sin"})
	b := ComputeSchemaHash([]string{"user_ctr", "offer_ctr", "hour_sin"})
	c := ComputeSchemaHash([]string{"offer_ctr", "user_ctr", "hour_sin"})

	if !Hash(a).Equals(Hash(b)) {
		t.Error("Expected identical column lists to hash identically")
	}
	if Hash(a).Equals(Hash(c)) {
		t.Error("Expected reordered column lists to hash differently")
	}
}

// TestComputeSchemaHashSeparator tests that column boundaries are unambiguous
func TestComputeSchemaHashSeparator(t *testing.T) {
	a := ComputeSchemaHash([]string{"ab", "c"})
	b := ComputeSchemaHash([]string{"a", "bc"})
	if Hash(a).Equals(Hash(b)) {
		t.Error("Expected different column splits to hash differently")
	}
}

// TestComputeConfigHashOrderIndependent tests map-order independence
func TestComputeConfigHashOrderIndependent(t *testing.T) {
	a := ComputeConfigHash(map[string]interface{}{"alpha": 10.0, "prior": 0.1})
	b := ComputeConfigHash(map[string]interface{}{"prior": 0.1, "alpha": 10.0})
	if !Hash(a).Equals(Hash(b)) {
		t.Error("Expected config hash to be independent of key order")
	}

	c := ComputeConfigHash(map[string]interface{}{"alpha": 20.0, "prior": 0.1})
	if Hash(a).Equals(Hash(c)) {
		t.Error("Expected changed parameter to change the hash")
	}
}

// TestWatermarkAdmitsEvent tests the snapshot replay boundary
func TestWatermarkAdmitsEvent(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWatermark(base)

	if w.AdmitsEvent(NewTimestamp(base.Add(-time.Hour))) {
		t.Error("Expected event before watermark to be rejected")
	}
	if w.AdmitsEvent(NewTimestamp(base)) {
		t.Error("Expected event at watermark to be rejected")
	}
	if !w.AdmitsEvent(NewTimestamp(base.Add(time.Second))) {
		t.Error("Expected event after watermark to be admitted")
	}
}

// TestValidityWindowContains tests timestamp window bounds
func TestValidityWindowContains(t *testing.T) {
	min := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	max := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
	w := ValidityWindow{Min: NewTimestamp(min), Max: NewTimestamp(max)}

	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"inside", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"at min", min, true},
		{"at max", max, true},
		{"before min", min.Add(-time.Second), false},
		{"after max", max.Add(time.Second), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := w.Contains(NewTimestamp(test.ts)); got != test.want {
				t.Errorf("Contains(%v) = %v, want %v", test.ts, got, test.want)
			}
		})
	}

	open := ValidityWindow{}
	if !open.Contains(NewTimestamp(min.AddDate(-10, 0, 0))) {
		t.Error("Expected open window to contain any timestamp")
	}
}
