package feature

import (
	"errors"
	"testing"

	"offerctr/domain/core"
)

func TestSchemaValidate(t *testing.T) {
	frozen := NewSchema("a", "b", "c")

	tests := []struct {
		name    string
		against Schema
		wantErr bool
	}{
		{"identical", NewSchema("a", "b", "c"), false},
		{"reordered", NewSchema("b", "a", "c"), true},
		{"renamed", NewSchema("a", "b", "z"), true},
		{"narrower", NewSchema("a", "b"), true},
		{"wider", NewSchema("a", "b", "c", "d"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.against.Validate(frozen)
			if tt.wantErr && !errors.Is(err, core.ErrSchemaMismatch) {
				t.Errorf("expected ErrSchemaMismatch, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSchemaHashIsOrderSensitive(t *testing.T) {
	a := NewSchema("x", "y").Hash()
	b := NewSchema("y", "x").Hash()
	if a == b {
		t.Error("schemas with different column order share a hash")
	}
	if a != NewSchema("x", "y").Hash() {
		t.Error("hash is not deterministic")
	}
}

func TestSchemaIndex(t *testing.T) {
	s := NewSchema("a", "b")
	if i, ok := s.Index("b"); !ok || i != 1 {
		t.Errorf("Index(b) = (%d, %v), want (1, true)", i, ok)
	}
	if _, ok := s.Index("nope"); ok {
		t.Error("Index found a column that does not exist")
	}
}
