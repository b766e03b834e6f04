package table

import (
	"errors"
	"testing"

	"offerctr/domain/core"
)

// TestSchemaValidate tests the column contract check
func TestSchemaValidate(t *testing.T) {
	have := NewSchema(
		ColumnSpec{Name: "user_id", Kind: String},
		ColumnSpec{Name: "offer_id", Kind: String},
		ColumnSpec{Name: "amount", Kind: Float64},
		ColumnSpec{Name: "event_time", Kind: Timestamp},
	)

	tests := []struct {
		name     string
		required Schema
		wantErr  bool
	}{
		{
			name: "satisfied contract",
			required: NewSchema(
				ColumnSpec{Name: "user_id", Kind: String},
				ColumnSpec{Name: "event_time", Kind: Timestamp},
			),
			wantErr: false,
		},
		{
			name: "family-compatible kind",
			required: NewSchema(
				ColumnSpec{Name: "amount", Kind: Float32},
			),
			wantErr: false,
		},
		{
			name: "missing column",
			required: NewSchema(
				ColumnSpec{Name: "label", Kind: Int8},
			),
			wantErr: true,
		},
		{
			name: "kind conflict",
			required: NewSchema(
				ColumnSpec{Name: "amount", Kind: String},
			),
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := have.Validate(test.required)
			if test.wantErr {
				if !errors.Is(err, core.ErrSchemaMismatch) {
					t.Errorf("Expected ErrSchemaMismatch, got %v", err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

// TestSchemaHashTracksOrder tests that reordering changes the fingerprint
func TestSchemaHashTracksOrder(t *testing.T) {
	a := NewSchema(
		ColumnSpec{Name: "x", Kind: Float64},
		ColumnSpec{Name: "y", Kind: Float64},
	)
	b := NewSchema(
		ColumnSpec{Name: "y", Kind: Float64},
		ColumnSpec{Name: "x", Kind: Float64},
	)
	if a.Hash() == b.Hash() {
		t.Error("Expected reordered schemas to fingerprint differently")
	}

	c := NewSchema(
		ColumnSpec{Name: "x", Kind: Float32},
		ColumnSpec{Name: "y", Kind: Float64},
	)
	if a.Hash() == c.Hash() {
		t.Error("Expected kind change to alter the fingerprint")
	}
}

// TestRequireKeys tests join-key validation
func TestRequireKeys(t *testing.T) {
	left := NewSchema(
		ColumnSpec{Name: "user_id", Kind: String},
		ColumnSpec{Name: "event_time", Kind: Timestamp},
	)
	right := NewSchema(
		ColumnSpec{Name: "user_id", Kind: Category},
		ColumnSpec{Name: "spend", Kind: Float64},
	)

	if err := RequireKeys(left, right, []string{"user_id"}); err != nil {
		t.Errorf("Expected category/string keys to be compatible, got %v", err)
	}

	if err := RequireKeys(left, right, []string{"offer_id"}); !errors.Is(err, core.ErrSchemaMismatch) {
		t.Errorf("Expected missing key to fail, got %v", err)
	}

	conflicting := NewSchema(
		ColumnSpec{Name: "user_id", Kind: Int64},
	)
	if err := RequireKeys(left, conflicting, []string{"user_id"}); !errors.Is(err, core.ErrSchemaMismatch) {
		t.Errorf("Expected kind conflict to fail, got %v", err)
	}
}
